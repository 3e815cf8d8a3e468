package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const defaultMailpitTestImage = "docker.io/axllent/mailpit:v1.27"

type mailpitIntegrationEnv struct {
	smtpHost string
	smtpPort int
	apiURL   string

	container testcontainers.Container
}

type mailpitMessage struct {
	ID      string `json:"ID"`
	Subject string `json:"Subject"`
	To      []struct {
		Address string `json:"Address"`
	} `json:"To"`
}

func newMailpitIntegrationEnv(t *testing.T) *mailpitIntegrationEnv {
	t.Helper()
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	image := os.Getenv("MAILPIT_TEST_IMAGE")
	if strings.TrimSpace(image) == "" {
		image = defaultMailpitTestImage
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        image,
			ExposedPorts: []string{"1025/tcp", "8025/tcp"},
			WaitingFor: wait.ForHTTP("/api/v1/messages").
				WithPort("8025/tcp").
				WithStartupTimeout(45 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("start mailpit test container: %v", err)
	}
	t.Cleanup(func() {
		_ = container.Terminate(ctx)
	})

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("resolve mailpit host: %v", err)
	}
	smtpPort, err := container.MappedPort(ctx, "1025/tcp")
	if err != nil {
		t.Fatalf("resolve mailpit smtp port: %v", err)
	}
	apiPort, err := container.MappedPort(ctx, "8025/tcp")
	if err != nil {
		t.Fatalf("resolve mailpit api port: %v", err)
	}
	port, err := strconv.Atoi(smtpPort.Port())
	if err != nil {
		t.Fatalf("parse mailpit smtp port: %v", err)
	}

	return &mailpitIntegrationEnv{
		smtpHost:  host,
		smtpPort:  port,
		apiURL:    "http://" + net.JoinHostPort(host, apiPort.Port()),
		container: container,
	}
}

// waitForMessage polls the mailpit API until a message for to arrives.
func (e *mailpitIntegrationEnv) waitForMessage(t *testing.T, to string) mailpitMessage {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	for {
		msgs, err := e.listMessages(ctx)
		if err == nil {
			for _, m := range msgs {
				for _, addr := range m.To {
					if strings.EqualFold(addr.Address, to) {
						return m
					}
				}
			}
		}
		select {
		case <-ctx.Done():
			t.Fatalf("no message for %s before timeout (last error: %v)", to, err)
		case <-ticker.C:
		}
	}
}

func (e *mailpitIntegrationEnv) listMessages(ctx context.Context) ([]mailpitMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.apiURL+"/api/v1/messages", nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("mailpit list status %d", resp.StatusCode)
	}
	var out struct {
		Messages []mailpitMessage `json:"messages"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return out.Messages, nil
}

func (e *mailpitIntegrationEnv) messageHTML(t *testing.T, id string) string {
	t.Helper()
	resp, err := http.Get(e.apiURL + "/api/v1/message/" + id)
	if err != nil {
		t.Fatalf("fetch mailpit message: %v", err)
	}
	defer resp.Body.Close()
	var out struct {
		HTML string `json:"HTML"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode mailpit message: %v", err)
	}
	return out.HTML
}
