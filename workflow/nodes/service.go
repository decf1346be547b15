package nodes

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/threadloop/weft/callback"
	"github.com/threadloop/weft/remote"
	"github.com/threadloop/weft/workflow"
)

// defaultAsyncTimeout bounds the wait for a remote webhook delivery when the
// node does not configure one.
const defaultAsyncTimeout = 10 * time.Minute

// cancelGrace bounds the best-effort remote cancellation call issued after
// the node's own context is already dead.
const cancelGrace = 10 * time.Second

// SyncServiceNode calls a remote compute service and returns its response
// directly: one POST, one JSON body back.
type SyncServiceNode struct {
	workflow.BaseNode
	client *remote.Client
}

func NewSyncServiceNode(id string, client *remote.Client) *SyncServiceNode {
	n := &SyncServiceNode{
		BaseNode: workflow.NewBaseNode("SyncServiceNode", id),
		client:   client,
	}
	n.AddInputPort(workflow.Port{Name: "service", Type: workflow.TypeString, Required: false, Default: "default",
		Tooltip: "Service name for rate limiting and logging"})
	n.AddInputPort(workflow.Port{Name: "api_url", Type: workflow.TypeString, Required: true,
		Tooltip: "Service endpoint URL"})
	n.AddInputPort(workflow.Port{Name: "payload", Type: workflow.TypeObject, Required: false,
		Tooltip: "Request body"})
	n.AddOutputPort(workflow.Port{Name: "response", Type: workflow.TypeObject})
	n.AddOutputPort(workflow.Port{Name: "status", Type: workflow.TypeString})
	return n
}

func (n *SyncServiceNode) Process(ctx context.Context) (map[string]any, error) {
	service := stringInput(n, "service", "default")
	url := stringInput(n, "api_url", "")
	payload := mapInput(n, "payload")
	if payload == nil {
		payload = map[string]any{}
	}

	response, err := n.client.Post(ctx, service, url, payload)
	if err != nil {
		return nil, fmt.Errorf("service %s request failed: %w", service, err)
	}
	return map[string]any{
		"response": response,
		"status":   "completed",
	}, nil
}

// AsyncServiceNode calls a remote compute service that answers through a
// webhook: the initial POST returns the remote job id and the pod's
// cancellation URL, then the node parks on the callback coordinator until
// the delivery arrives. Cancellation and timeout both trigger a best-effort
// remote cancel.
type AsyncServiceNode struct {
	workflow.BaseNode
	client      *remote.Client
	coordinator *callback.Coordinator
	logger      *slog.Logger
}

func NewAsyncServiceNode(id string, client *remote.Client, coordinator *callback.Coordinator, logger *slog.Logger) *AsyncServiceNode {
	if logger == nil {
		logger = slog.Default()
	}
	n := &AsyncServiceNode{
		BaseNode:    workflow.NewBaseNode("AsyncServiceNode", id),
		client:      client,
		coordinator: coordinator,
		logger:      logger,
	}
	n.AddInputPort(workflow.Port{Name: "service", Type: workflow.TypeString, Required: false, Default: "default",
		Tooltip: "Service name for rate limiting and logging"})
	n.AddInputPort(workflow.Port{Name: "api_url", Type: workflow.TypeString, Required: true,
		Tooltip: "Service endpoint URL"})
	n.AddInputPort(workflow.Port{Name: "payload", Type: workflow.TypeObject, Required: false,
		Tooltip: "Request body"})
	n.AddInputPort(workflow.Port{Name: "callback_url", Type: workflow.TypeString, Required: true,
		Tooltip: "This service's webhook endpoint, injected into the request"})
	n.AddInputPort(workflow.Port{Name: "timeout", Type: workflow.TypeNumber, Required: false,
		Tooltip: "Seconds to wait for the webhook delivery (default: 600)"})
	n.AddOutputPort(workflow.Port{Name: "output_url", Type: workflow.TypeString})
	n.AddOutputPort(workflow.Port{Name: "status", Type: workflow.TypeString})
	n.AddOutputPort(workflow.Port{Name: "response", Type: workflow.TypeObject})
	return n
}

func (n *AsyncServiceNode) Process(ctx context.Context) (map[string]any, error) {
	service := stringInput(n, "service", "default")
	url := stringInput(n, "api_url", "")
	payload := mapInput(n, "payload")

	timeout := defaultAsyncTimeout
	if seconds := floatInput(n, "timeout", 0); seconds > 0 {
		timeout = time.Duration(seconds * float64(time.Second))
	}

	body := make(map[string]any, len(payload)+1)
	for k, v := range payload {
		body[k] = v
	}
	body["webhookUrl"] = stringInput(n, "callback_url", "")

	response, err := n.client.Post(ctx, service, url, body)
	if err != nil {
		return nil, fmt.Errorf("service %s request failed: %w", service, err)
	}

	remoteID, _ := response["id"].(string)
	if remoteID == "" {
		return nil, fmt.Errorf("service %s response is missing the remote job id", service)
	}
	podURL, _ := response["pod_url"].(string)

	if err := n.coordinator.Register(remoteID, n.handleDelivery); err != nil {
		return nil, err
	}

	n.logger.Info("waiting for webhook delivery",
		slog.String("node_id", n.ID()),
		slog.String("service", service),
		slog.String("remote_id", remoteID))

	result, err := n.coordinator.Wait(ctx, remoteID, timeout)
	if err != nil {
		// Handler errors mean the remote job already finished; everything
		// else leaves it running and worth a cancellation attempt.
		var handlerErr *callback.HandlerError
		if !errors.As(err, &handlerErr) && podURL != "" {
			cancelCtx, cancel := context.WithTimeout(context.Background(), cancelGrace)
			defer cancel()
			n.client.Cancel(cancelCtx, podURL, remoteID)
		}
		return nil, err
	}
	return result, nil
}

// handleDelivery transforms the webhook payload into node outputs. It runs
// on the delivery goroutine, inside the coordinator.
func (n *AsyncServiceNode) handleDelivery(payload map[string]any) (map[string]any, error) {
	status, _ := payload["status"].(string)
	switch status {
	case "completed":
		outputURL, _ := payload["output_url"].(string)
		if urls, ok := payload["localUrls"].([]any); ok && len(urls) > 0 {
			if first, ok := urls[0].(string); ok {
				outputURL = first
			}
		}
		return map[string]any{
			"output_url": outputURL,
			"status":     status,
			"response":   payload,
		}, nil
	case "failed":
		message, _ := payload["error"].(string)
		if message == "" {
			message = "unknown error"
		}
		return nil, fmt.Errorf("remote job failed: %s", message)
	default:
		return nil, fmt.Errorf("unexpected remote job status %q", status)
	}
}
