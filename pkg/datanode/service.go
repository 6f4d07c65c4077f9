package datanode

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync/atomic"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"

	"github.com/cuemby/blockstore/pkg/log"
	"github.com/cuemby/blockstore/pkg/metrics"
	"github.com/cuemby/blockstore/pkg/transport"
)

// Service implements transport.BlockServiceServer over a local
// BlockStore: the streaming contract from §4.4 (StoreBlock is
// bidi-streaming so a block larger than one message arrives as a
// sequence of chunks; RetrieveBlock streams the same way back).
type Service struct {
	store  *BlockStore
	logger zerolog.Logger
	dial   func(addr string) (*transport.BlockServiceClient, func() error, error)

	blocksStored, blocksRetrieved int64
	bytesStored, bytesRetrieved   int64
}

func NewService(store *BlockStore, dial func(addr string) (*transport.BlockServiceClient, func() error, error)) *Service {
	return &Service{store: store, logger: log.WithComponent("datanode-service"), dial: dial}
}

func (s *Service) StoreBlock(stream grpc.BidiStreamingServer[transport.ChunkRequest, transport.ChunkResponse]) error {
	timer := metrics.NewTimer()
	var buf bytes.Buffer
	var blockID, wantChecksum string

	for {
		req, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		if blockID == "" {
			blockID = req.BlockID
		}
		chunk, err := transport.Decompress(req.Codec, req.Data)
		if err != nil {
			return stream.Send(&transport.ChunkResponse{Success: false, Message: err.Error()})
		}
		buf.Write(chunk)
		if req.IsLast {
			wantChecksum = req.Checksum
			break
		}
	}

	checksum, err := s.store.Store(blockID, buf.Bytes())
	if err != nil {
		return stream.Send(&transport.ChunkResponse{Success: false, Message: err.Error()})
	}
	if wantChecksum != "" && wantChecksum != checksum {
		metrics.ChecksumMismatchesTotal.Inc()
		_ = s.store.Delete(blockID)
		return stream.Send(&transport.ChunkResponse{Success: false, Message: "checksum mismatch"})
	}

	atomic.AddInt64(&s.blocksStored, 1)
	atomic.AddInt64(&s.bytesStored, int64(buf.Len()))
	metrics.BlocksStoredTotal.Inc()
	timer.ObserveDuration(metrics.BlockStoreDuration)

	return stream.Send(&transport.ChunkResponse{Success: true, Checksum: checksum, Size: int64(buf.Len())})
}

const retrieveChunkSize = 1 << 20 // 1 MiB per frame

func (s *Service) RetrieveBlock(req *transport.RetrieveRequest, stream grpc.ServerStreamingServer[transport.ChunkResponse]) error {
	timer := metrics.NewTimer()
	data, err := s.store.Retrieve(req.BlockID)
	if err != nil {
		return err
	}

	sum, err := s.store.Checksum(req.BlockID)
	if err != nil {
		return err
	}

	if len(data) == 0 {
		if err := stream.Send(&transport.ChunkResponse{Success: true, IsLast: true, Checksum: sum}); err != nil {
			return err
		}
	}
	for offset := 0; offset < len(data); offset += retrieveChunkSize {
		end := offset + retrieveChunkSize
		if end > len(data) {
			end = len(data)
		}
		isLast := end == len(data)
		frame, err := transport.Compress(req.Codec, data[offset:end])
		if err != nil {
			return err
		}
		resp := &transport.ChunkResponse{Success: true, Data: frame, IsLast: isLast, Codec: req.Codec}
		if isLast {
			resp.Checksum = sum
		}
		if err := stream.Send(resp); err != nil {
			return err
		}
	}

	atomic.AddInt64(&s.blocksRetrieved, 1)
	atomic.AddInt64(&s.bytesRetrieved, int64(len(data)))
	timer.ObserveDuration(metrics.BlockRetrieveDuration)
	return nil
}

func (s *Service) CheckBlock(ctx context.Context, req *transport.CheckRequest) (*transport.CheckResponse, error) {
	if !s.store.Has(req.BlockID) {
		return &transport.CheckResponse{Exists: false}, nil
	}
	sum, err := s.store.Checksum(req.BlockID)
	if err != nil {
		return nil, err
	}
	return &transport.CheckResponse{Exists: true, Checksum: sum}, nil
}

func (s *Service) DeleteBlock(ctx context.Context, req *transport.DeleteRequest) (*transport.DeleteResponse, error) {
	if err := s.store.Delete(req.BlockID); err != nil {
		return nil, err
	}
	return &transport.DeleteResponse{Success: true}, nil
}

// ReplicateBlock pulls a block from a peer datanode's block service
// and stores it locally, used by the coordinator's re-replicator and
// balancer to move bytes node-to-node without routing through itself.
func (s *Service) ReplicateBlock(ctx context.Context, req *transport.ReplicateRequest) (*transport.ReplicateResponse, error) {
	client, closeFn, err := s.dial(req.SourceAddr)
	if err != nil {
		return nil, fmt.Errorf("dial source %s: %w", req.SourceAddr, err)
	}
	defer closeFn()

	stream, err := client.RetrieveBlock(ctx, &transport.RetrieveRequest{BlockID: req.BlockID})
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	var wantChecksum string
	for {
		chunk, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		buf.Write(chunk.Data)
		if chunk.IsLast {
			wantChecksum = chunk.Checksum
			break
		}
	}

	checksum, err := s.store.Store(req.BlockID, buf.Bytes())
	if err != nil {
		return nil, err
	}
	if wantChecksum != "" && wantChecksum != checksum {
		metrics.ChecksumMismatchesTotal.Inc()
		_ = s.store.Delete(req.BlockID)
		return nil, fmt.Errorf("checksum mismatch replicating block %s", req.BlockID)
	}
	metrics.BlocksStoredTotal.Inc()
	return &transport.ReplicateResponse{Success: true, Checksum: checksum}, nil
}

func (s *Service) GetTransferStats(ctx context.Context, req *transport.TransferStatsRequest) (*transport.TransferStatsResponse, error) {
	return &transport.TransferStatsResponse{
		BlocksStored:    atomic.LoadInt64(&s.blocksStored),
		BlocksRetrieved: atomic.LoadInt64(&s.blocksRetrieved),
		BytesStored:     atomic.LoadInt64(&s.bytesStored),
		BytesRetrieved:  atomic.LoadInt64(&s.bytesRetrieved),
	}, nil
}
