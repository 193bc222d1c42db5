//go:build integration

package integration

import (
	"context"
	"net"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/goforj/kvcore/bridge"
	"github.com/goforj/kvcore/bus"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	goredis "github.com/redis/go-redis/v9"
	testcontainers "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

type transportFactory struct {
	name string
	new  func(t *testing.T) (bridge.Transport, bridge.Transport)
}

// TestBridgeRoundTrip_AllTransports connects two buses through a real broker.
// INTEGRATION_TRANSPORT may be "all" (default) or a comma-separated list such as "redis".
func TestBridgeRoundTrip_AllTransports(t *testing.T) {
	var fixtures []transportFactory

	if integrationTransportEnabled("redis") {
		fixtures = append(fixtures, transportFactory{
			name: "redis",
			new: func(t *testing.T) (bridge.Transport, bridge.Transport) {
				addr := startContainer(t, "redis:7-bookworm", "6379/tcp", nil, nil, wait.ForListeningPort("6379/tcp"))
				a := goredis.NewClient(&goredis.Options{Addr: addr})
				b := goredis.NewClient(&goredis.Options{Addr: addr})
				t.Cleanup(func() {
					_ = a.Close()
					_ = b.Close()
				})
				return bridge.NewRedisTransport(a), bridge.NewRedisTransport(b)
			},
		})
	}

	if integrationTransportEnabled("nats") {
		fixtures = append(fixtures, transportFactory{
			name: "nats",
			new: func(t *testing.T) (bridge.Transport, bridge.Transport) {
				addr := startContainer(t, "nats:2", "4222/tcp", nil, nil, wait.ForLog("Server is ready"))
				a := connectNATS(t, addr)
				b := connectNATS(t, addr)
				return bridge.NewNATSTransport(a), bridge.NewNATSTransport(b)
			},
		})
	}

	if integrationTransportEnabled("postgres") {
		fixtures = append(fixtures, transportFactory{
			name: "postgres",
			new: func(t *testing.T) (bridge.Transport, bridge.Transport) {
				addr := startContainer(t, "postgres:16-alpine", "5432/tcp", nil,
					map[string]string{"POSTGRES_PASSWORD": "kvcore", "POSTGRES_DB": "kvcore"},
					wait.ForLog("database system is ready to accept connections").WithOccurrence(2))
				dsn := "postgres://postgres:kvcore@" + addr + "/kvcore?sslmode=disable"
				return newPostgresTransport(t, dsn), newPostgresTransport(t, dsn)
			},
		})
	}

	for _, fx := range fixtures {
		fx := fx
		t.Run(fx.name, func(t *testing.T) {
			ta, tb := fx.new(t)
			runRoundTrip(t, ta, tb)
		})
	}
}

func runRoundTrip(t *testing.T, ta, tb bridge.Transport) {
	ctx := context.Background()

	busA, busB := bus.New(), bus.New()
	brA := bridge.New(busA, ta, bridge.WithNodeID("node-a"))
	brB := bridge.New(busB, tb, bridge.WithNodeID("node-b"))
	t.Cleanup(func() {
		_ = brA.Close()
		_ = brB.Close()
		_ = busA.Close(ctx)
		_ = busB.Close(ctx)
	})

	for _, br := range []*bridge.Bridge{brA, brB} {
		if err := br.Export("chat.*"); err != nil {
			t.Fatalf("export: %v", err)
		}
		if err := br.Import(ctx, "chat.*"); err != nil {
			t.Fatalf("import: %v", err)
		}
	}

	var mu sync.Mutex
	var gotA, gotB []string
	record := func(dst *[]string) bus.Handler {
		return func(_ context.Context, msg bus.Message) error {
			mu.Lock()
			defer mu.Unlock()
			*dst = append(*dst, msg.Topic+"="+string(msg.Payload))
			return nil
		}
	}
	if _, err := busA.Subscribe("chat.*", record(&gotA)); err != nil {
		t.Fatalf("subscribe a: %v", err)
	}
	if _, err := busB.Subscribe("chat.*", record(&gotB)); err != nil {
		t.Fatalf("subscribe b: %v", err)
	}

	if _, err := busA.Publish(ctx, "chat.room", []byte("from-a")); err != nil {
		t.Fatalf("publish a: %v", err)
	}
	if _, err := busB.Publish(ctx, "chat.room", []byte("from-b")); err != nil {
		t.Fatalf("publish b: %v", err)
	}

	deadline := time.Now().Add(10 * time.Second)
	for {
		mu.Lock()
		done := len(gotA) >= 2 && len(gotB) >= 2
		mu.Unlock()
		if done || time.Now().After(deadline) {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	// Leave time for any echo to show up before counting.
	time.Sleep(200 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	for name, got := range map[string][]string{"a": gotA, "b": gotB} {
		if len(got) != 2 {
			t.Fatalf("node %s: expected 2 messages, got %v", name, got)
		}
		if !contains(got, "chat.room=from-a") || !contains(got, "chat.room=from-b") {
			t.Fatalf("node %s: unexpected messages %v", name, got)
		}
	}
}

func startContainer(t *testing.T, image, port string, cmd []string, env map[string]string, strategy wait.Strategy) string {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        image,
		Cmd:          cmd,
		Env:          env,
		ExposedPorts: []string{port},
		WaitingFor:   strategy,
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("start %s container: %v", image, err)
	}
	t.Cleanup(func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = container.Terminate(shutdownCtx)
	})

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("%s container host: %v", image, err)
	}
	mapped, err := container.MappedPort(ctx, nat.Port(port))
	if err != nil {
		t.Fatalf("%s container port: %v", image, err)
	}
	return net.JoinHostPort(host, mapped.Port())
}

func connectNATS(t *testing.T, addr string) *nats.Conn {
	t.Helper()
	var conn *nats.Conn
	var err error
	deadline := time.Now().Add(10 * time.Second)
	for {
		conn, err = nats.Connect("nats://" + addr)
		if err == nil || time.Now().After(deadline) {
			break
		}
		time.Sleep(100 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("connect nats: %v", err)
	}
	t.Cleanup(conn.Close)
	return conn
}

func newPostgresTransport(t *testing.T, dsn string) bridge.Transport {
	t.Helper()
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("postgres pool: %v", err)
	}
	t.Cleanup(pool.Close)
	return bridge.NewPostgresTransport(bridge.PostgresConfig{
		Publisher: pool,
		Listen: func(ctx context.Context) (bridge.PostgresListener, error) {
			conn, err := pgx.Connect(ctx, dsn)
			if err != nil {
				return nil, err
			}
			return conn, nil
		},
		OnError: func(err error) { t.Logf("postgres listener: %v", err) },
	})
}

func contains(values []string, want string) bool {
	for _, v := range values {
		if v == want {
			return true
		}
	}
	return false
}

func selectedIntegrationTransports() map[string]bool {
	selected := map[string]bool{
		"redis":    true,
		"nats":     true,
		"postgres": true,
	}
	value := strings.TrimSpace(strings.ToLower(os.Getenv("INTEGRATION_TRANSPORT")))
	if value == "" || value == "all" {
		return selected
	}
	for key := range selected {
		selected[key] = false
	}
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		selected[part] = true
	}
	return selected
}

func integrationTransportEnabled(name string) bool {
	return selectedIntegrationTransports()[strings.ToLower(name)]
}
