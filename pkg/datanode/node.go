package datanode

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/cuemby/blockstore/pkg/log"
	"github.com/cuemby/blockstore/pkg/transport"
)

// Config configures a storage node process.
type Config struct {
	Host            string
	Port            int
	CoordinatorAddr string // coordinator's HTTP control-plane address
	DataDir         string
	StorageCapacity int64
}

// Node is a storage node: it runs the grpc block service, registers
// itself with the coordinator, and sends periodic heartbeats reporting
// capacity and the set of blocks it actually holds, mirroring the
// teacher's worker.go registration/heartbeatLoop split.
type Node struct {
	cfg    Config
	id     string
	store  *BlockStore
	svc    *Service
	grpc   *grpc.Server
	logger zerolog.Logger
	stopCh chan struct{}
}

func NewNode(cfg Config) (*Node, error) {
	store, err := NewBlockStore(cfg.DataDir)
	if err != nil {
		return nil, err
	}
	n := &Node{
		cfg:    cfg,
		store:  store,
		logger: log.WithComponent("datanode"),
		stopCh: make(chan struct{}),
	}
	n.svc = NewService(store, n.dial)
	return n, nil
}

func (n *Node) dial(addr string) (*transport.BlockServiceClient, func() error, error) {
	cc, err := grpc.NewClient(addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype("json")),
	)
	if err != nil {
		return nil, nil, err
	}
	return transport.NewBlockServiceClient(cc), cc.Close, nil
}

// Start registers the node with the coordinator, then launches the
// grpc block service and heartbeat loop. It blocks serving grpc until
// Stop is called, so callers should run it in its own goroutine.
func (n *Node) Start() error {
	used, err := n.store.UsedBytes()
	if err != nil {
		return fmt.Errorf("measure used bytes: %w", err)
	}
	available := n.cfg.StorageCapacity - used

	node, err := n.registerWithCoordinator(available)
	if err != nil {
		return fmt.Errorf("register with coordinator: %w", err)
	}
	n.id = node.ID
	n.logger = log.WithNodeID(n.id)
	n.logger.Info().Str("addr", fmt.Sprintf("%s:%d", n.cfg.Host, n.cfg.Port)).Msg("datanode registered")

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", n.cfg.Port))
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	n.grpc = grpc.NewServer()
	transport.RegisterBlockServiceServer(n.grpc, n.svc)

	go n.heartbeatLoop()

	return n.grpc.Serve(lis)
}

func (n *Node) Stop() {
	close(n.stopCh)
	if n.grpc != nil {
		n.grpc.GracefulStop()
	}
}

// datanodeRegistration decodes just the ID field out of the
// coordinator's full DataNode JSON response; types.DataNode carries no
// json tags, so the wire field name is the Go field name.
type datanodeRegistration struct {
	ID string
}

func (n *Node) registerWithCoordinator(available int64) (*datanodeRegistration, error) {
	body, _ := json.Marshal(map[string]interface{}{
		"host":             n.cfg.Host,
		"port":             n.cfg.Port,
		"storage_capacity": n.cfg.StorageCapacity,
		"available_space":  available,
	})
	resp, err := http.Post("http://"+n.cfg.CoordinatorAddr+"/datanodes/register", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("registration rejected: status %d", resp.StatusCode)
	}
	var out datanodeRegistration
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (n *Node) heartbeatLoop() {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := n.sendHeartbeat(); err != nil {
				n.logger.Warn().Err(err).Msg("heartbeat failed")
			}
		case <-n.stopCh:
			return
		}
	}
}

func (n *Node) sendHeartbeat() error {
	blocks, err := n.store.List()
	if err != nil {
		return err
	}
	used, err := n.store.UsedBytes()
	if err != nil {
		return err
	}
	available := n.cfg.StorageCapacity - used

	body, _ := json.Marshal(map[string]interface{}{
		"available_space": available,
		"reported_blocks": blocks,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "http://"+n.cfg.CoordinatorAddr+"/datanodes/"+n.id+"/heartbeat", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("heartbeat rejected: status %d", resp.StatusCode)
	}
	return nil
}
