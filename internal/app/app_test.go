package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/vladislavdragonenkov/camisetas/internal/health"
)

func findFreePort(t *testing.T) int {
	t.Helper()

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer lis.Close()
	return lis.Addr().(*net.TCPAddr).Port
}

func localAddr(port int) string {
	return fmt.Sprintf("127.0.0.1:%d", port)
}

func waitForStatus(t *testing.T, url string, want int) {
	t.Helper()

	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		return resp.StatusCode == want
	}, 5*time.Second, 20*time.Millisecond, "endpoint %s did not answer %d", url, want)
}

func TestStartMetricsServer_Endpoints(t *testing.T) {
	logger := log.WithField("test", "metrics-server")
	port := findFreePort(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	checks := health.NewRegistry("test")
	checks.Register("storage", health.Critical("storage", func(context.Context) error {
		return errors.New("connection refused")
	}))

	srv := startMetricsServer(ctx, localAddr(port), logger, checks)
	require.NotNil(t, srv)
	base := "http://" + localAddr(port)

	waitForStatus(t, base+"/livez", http.StatusOK)
	waitForStatus(t, base+"/metrics", http.StatusOK)
	waitForStatus(t, base+"/readyz", http.StatusServiceUnavailable)

	resp, err := http.Get(base + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	var report health.Report
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&report))
	require.Equal(t, health.StatusUnhealthy, report.Status)
	require.Equal(t, "connection refused", report.Checks["storage"].Message)
}

func TestStartMetricsServer_EmptyAddrDisabled(t *testing.T) {
	require.Nil(t, startMetricsServer(context.Background(), "", log.WithField("test", "metrics"), health.NewRegistry("test")))
}

func TestRun_InvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Storage.Driver = "sqlite"

	err := Run(context.Background(), cfg)
	require.ErrorContains(t, err, "invalid config")
}

func TestRun_MemoryStorageEndToEnd(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping server lifecycle test in short mode")
	}
	gin.SetMode(gin.TestMode)

	cfg := DefaultConfig()
	cfg.HTTPAddr = localAddr(findFreePort(t))
	cfg.MetricsAddr = localAddr(findFreePort(t))
	cfg.GRPCAddr = localAddr(findFreePort(t))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- Run(ctx, cfg) }()

	api := "http://" + cfg.HTTPAddr
	ops := "http://" + cfg.MetricsAddr
	waitForStatus(t, api+"/pedidos/health", http.StatusOK)
	waitForStatus(t, ops+"/readyz", http.StatusOK)

	body, err := json.Marshal(map[string]any{
		"nome_destinario":  "Maria Souza",
		"telefone_contato": "11999990000",
		"cep":              "01001-000",
		"rua":              "Praça da Sé",
		"numero":           100,
		"bairro":           "Sé",
		"forma_pagamento":  "PIX",
		"itens": []map[string]any{
			{"id_camiseta": "camiseta-branca", "tamanho": "M", "tipo_camiseta": "Regular", "preco": 59.9},
		},
	})
	require.NoError(t, err)

	for want := int64(1); want <= 2; want++ {
		resp, err := http.Post(api+"/pedidos", "application/json", bytes.NewReader(body))
		require.NoError(t, err)
		var created struct {
			Pedido struct {
				Numero int64 `json:"id"`
			} `json:"pedido"`
		}
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
		resp.Body.Close()
		require.Equal(t, want, created.Pedido.Numero)
	}

	resp, err := http.Get(ops + "/metrics")
	require.NoError(t, err)
	metricsBody, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	require.Contains(t, string(metricsBody), "shop_orders_created_total")

	conn, err := grpc.NewClient(cfg.GRPCAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool {
		checkCtx, checkCancel := context.WithTimeout(ctx, time.Second)
		defer checkCancel()
		res, err := healthpb.NewHealthClient(conn).Check(checkCtx, &healthpb.HealthCheckRequest{Service: serviceName})
		return err == nil && res.GetStatus() == healthpb.HealthCheckResponse_SERVING
	}, 5*time.Second, 50*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not stop after context cancellation")
	}
}
