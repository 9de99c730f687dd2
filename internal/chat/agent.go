package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/protobuf/types/known/structpb"
)

// ChatMethod is the unary RPC served by the remote agent.
const ChatMethod = "/nero.agent.v1.AgentService/Chat"

var (
	errConnectionShutdown       = errors.New("connection shutdown")
	errConnectionStateUnchanged = errors.New("connection state did not change")
	errAgentResponse            = errors.New("agent returned error")
)

// AgentClient answers through a remote agent over gRPC.
// Messages are google.protobuf.Struct values so no generated stubs are needed.
type AgentClient struct {
	conn   *grpc.ClientConn
	addr   string
	logger *slog.Logger
}

// NewAgentClient dials cfg.AgentAddr and waits until the connection is ready.
func NewAgentClient(cfg Config, logger *slog.Logger) (*AgentClient, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()

	kacp := keepalive.ClientParameters{
		Time:                cfg.KeepaliveTime,
		Timeout:             cfg.KeepaliveTimeout,
		PermitWithoutStream: false,
	}

	conn, err := grpc.NewClient(cfg.AgentAddr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithKeepaliveParams(kacp),
	)
	if err != nil {
		return nil, fmt.Errorf("dial agent at %s: %w", cfg.AgentAddr, err)
	}

	// Fail fast on a bad endpoint.
	connectCtx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
	defer cancel()
	if err := waitForReady(connectCtx, conn); err != nil {
		if closeErr := conn.Close(); closeErr != nil {
			logger.Warn("failed to close gRPC connection after readiness failure", "error", closeErr)
		}
		return nil, fmt.Errorf("agent at %s not ready: %w", cfg.AgentAddr, err)
	}

	logger.Info("Connected to chat agent", "address", cfg.AgentAddr)
	return &AgentClient{conn: conn, addr: cfg.AgentAddr, logger: logger}, nil
}

func waitForReady(ctx context.Context, conn *grpc.ClientConn) error {
	for {
		state := conn.GetState()
		switch state {
		case connectivity.Ready:
			return nil
		case connectivity.Idle:
			conn.Connect()
		case connectivity.Shutdown:
			return errConnectionShutdown
		}

		if !conn.WaitForStateChange(ctx, state) {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("%w from %s", errConnectionStateUnchanged, state)
		}
	}
}

// Name implements Backend.
func (c *AgentClient) Name() string { return "agent" }

// Close closes the gRPC connection.
func (c *AgentClient) Close() {
	if c.conn != nil {
		if err := c.conn.Close(); err != nil {
			c.logger.Warn("failed to close gRPC connection", "error", err)
		}
	}
}

// Reply sends one Chat RPC.
func (c *AgentClient) Reply(ctx context.Context, req Request) (string, error) {
	in, err := encodeAgentRequest(req)
	if err != nil {
		return "", err
	}
	out := &structpb.Struct{}
	if err := c.conn.Invoke(ctx, ChatMethod, in, out); err != nil {
		return "", fmt.Errorf("chat request failed: %w", err)
	}
	return decodeAgentResponse(out)
}

func encodeAgentRequest(req Request) (*structpb.Struct, error) {
	prior, last := req.split()
	history := make([]any, 0, len(prior))
	for _, m := range prior {
		history = append(history, map[string]any{
			"role":    string(m.Role),
			"content": m.Content,
		})
	}
	in, err := structpb.NewStruct(map[string]any{
		"message":       last,
		"history":       history,
		"level":         int(req.Level),
		"platform":      req.Platform.Name,
		"system_prompt": SystemPrompt(req.Level, req.Platform),
	})
	if err != nil {
		return nil, fmt.Errorf("encode chat request: %w", err)
	}
	return in, nil
}

func decodeAgentResponse(out *structpb.Struct) (string, error) {
	fields := out.GetFields()
	if fields["response_type"].GetStringValue() == "error" {
		msg := fields["error_message"].GetStringValue()
		if msg == "" {
			return "", errAgentResponse
		}
		return "", fmt.Errorf("%w: %s", errAgentResponse, msg)
	}
	return fields["content"].GetStringValue(), nil
}
