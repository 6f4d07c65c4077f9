package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"path"
	"strings"

	"github.com/cuemby/blockstore/pkg/types"
)

// ControlClient talks to the coordinator's HTTP control plane (§6).
// It is deliberately separate from the grpc block-transfer path: the
// teacher's own client wraps a single grpc stub for everything, but
// this project splits control (HTTP) from data (grpc), so the client
// library wraps one of each.
type ControlClient struct {
	baseAddr string
	http     *http.Client
}

func NewControlClient(addr string) *ControlClient {
	return &ControlClient{baseAddr: addr, http: &http.Client{}}
}

func (c *ControlClient) url(format string, args ...interface{}) string {
	return "http://" + c.baseAddr + fmt.Sprintf(format, args...)
}

func (c *ControlClient) doJSON(ctx context.Context, method, url string, body interface{}, out interface{}) error {
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var payload struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&payload)
		if payload.Error == "" {
			payload.Error = fmt.Sprintf("status %d", resp.StatusCode)
		}
		return fmt.Errorf("%s %s: %s", method, url, payload.Error)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// EnsureDirectoryChain creates every missing ancestor directory of
// path, mirroring §4.3(a)'s "resolve and, if needed, create the
// destination directory chain". Directories that already exist are
// tolerated (coordinator returns Conflict, which we swallow here).
func (c *ControlClient) EnsureDirectoryChain(ctx context.Context, filePath, owner string) error {
	dir := path.Dir(filePath)
	if dir == "/" || dir == "." {
		return nil
	}
	parts := strings.Split(strings.Trim(dir, "/"), "/")
	cur := ""
	for _, p := range parts {
		cur = cur + "/" + p
		err := c.doJSON(ctx, http.MethodPost, c.url("/directories"), map[string]interface{}{
			"path":  cur,
			"owner": owner,
		}, nil)
		if err != nil && !strings.Contains(err.Error(), "exists") {
			return err
		}
	}
	return nil
}

func (c *ControlClient) CreateFile(ctx context.Context, filePath, owner string, size int64) (*types.FileEntry, error) {
	var entry types.FileEntry
	err := c.doJSON(ctx, http.MethodPost, c.url("/files"), map[string]interface{}{
		"path":  filePath,
		"type":  types.EntryTypeFile,
		"owner": owner,
		"size":  size,
	}, &entry)
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (c *ControlClient) FileInfo(ctx context.Context, filePath string) (*types.FileStats, error) {
	var stats types.FileStats
	if err := c.doJSON(ctx, http.MethodGet, c.url("/files/info%s", filePath), nil, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

func (c *ControlClient) RegisterBlock(ctx context.Context, blockID, fileID string, index int, size int64, checksum string) error {
	return c.doJSON(ctx, http.MethodPost, c.url("/blocks"), map[string]interface{}{
		"block_id": blockID,
		"file_id":  fileID,
		"index":    index,
		"size":     size,
		"checksum": checksum,
	}, nil)
}

func (c *ControlClient) PlaceBlock(ctx context.Context, blockID string, size int64, exclude map[string]bool) ([]*types.DataNode, error) {
	ids := make([]string, 0, len(exclude))
	for id := range exclude {
		ids = append(ids, id)
	}
	var nodes []*types.DataNode
	err := c.doJSON(ctx, http.MethodPost, c.url("/blocks/%s/placement", blockID), map[string]interface{}{
		"size":    size,
		"exclude": ids,
	}, &nodes)
	if err != nil {
		return nil, err
	}
	return nodes, nil
}

func (c *ControlClient) AddLocation(ctx context.Context, blockID, nodeID string, isLeader bool) error {
	return c.doJSON(ctx, http.MethodPost, c.url("/blocks/%s/locations", blockID), map[string]interface{}{
		"node_id":   nodeID,
		"is_leader": isLeader,
	}, nil)
}

func (c *ControlClient) ListDirectory(ctx context.Context, dirPath string) ([]*types.FileEntry, error) {
	var entries []*types.FileEntry
	if err := c.doJSON(ctx, http.MethodGet, c.url("/directories%s", dirPath), nil, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func (c *ControlClient) GetNode(ctx context.Context, nodeID string) (*types.DataNode, error) {
	var node types.DataNode
	if err := c.doJSON(ctx, http.MethodGet, c.url("/datanodes/%s", nodeID), nil, &node); err != nil {
		return nil, err
	}
	return &node, nil
}
