package transport

import (
	"context"

	"google.golang.org/grpc"
)

// serviceName is the grpc service path block service RPCs register under.
const serviceName = "blockstore.BlockService"

// ChunkRequest is one frame of a StoreBlock stream. A block larger
// than a single message is sent as a sequence of ChunkRequests sharing
// BlockID, in Offset order; IsLast marks the final frame, after which
// Checksum (sha256 of the full block) is verified server-side.
type ChunkRequest struct {
	BlockID  string `json:"block_id"`
	Offset   int64  `json:"offset"`
	Data     []byte `json:"data"`
	IsLast   bool   `json:"is_last"`
	Checksum string `json:"checksum,omitempty"`
	Codec    Codec  `json:"codec,omitempty"`
}

// ChunkResponse acknowledges a ChunkRequest (Success/Message/Checksum/
// Size are set on StoreBlock's single final ack), and doubles as the
// data frame streamed back by RetrieveBlock (Data/IsLast populated,
// Checksum set on the last frame).
type ChunkResponse struct {
	Success  bool   `json:"success"`
	Message  string `json:"message,omitempty"`
	Checksum string `json:"checksum,omitempty"`
	Size     int64  `json:"size,omitempty"`
	Data     []byte `json:"data,omitempty"`
	IsLast   bool   `json:"is_last,omitempty"`
	Codec    Codec  `json:"codec,omitempty"`
}

// RetrieveRequest asks for a block's bytes back. Codec, when set,
// asks the datanode to compress outgoing frames under that algorithm.
type RetrieveRequest struct {
	BlockID string `json:"block_id"`
	Codec   Codec  `json:"codec,omitempty"`
}

// CheckRequest/Response implement §4.4's checksum verification RPC
// without transferring the block's bytes.
type CheckRequest struct {
	BlockID string `json:"block_id"`
}

type CheckResponse struct {
	Exists   bool   `json:"exists"`
	Checksum string `json:"checksum,omitempty"`
}

type DeleteRequest struct {
	BlockID string `json:"block_id"`
}

type DeleteResponse struct {
	Success bool `json:"success"`
}

// ReplicateRequest asks a datanode to pull a block from a peer
// datanode, used by the coordinator's re-replicator and balancer so
// block bytes never round-trip through the coordinator.
type ReplicateRequest struct {
	BlockID    string `json:"block_id"`
	SourceAddr string `json:"source_addr"`
}

type ReplicateResponse struct {
	Success  bool   `json:"success"`
	Checksum string `json:"checksum,omitempty"`
}

type TransferStatsRequest struct{}

type TransferStatsResponse struct {
	BlocksStored    int64 `json:"blocks_stored"`
	BlocksRetrieved int64 `json:"blocks_retrieved"`
	BytesStored     int64 `json:"bytes_stored"`
	BytesRetrieved  int64 `json:"bytes_retrieved"`
}

// BlockServiceServer is implemented by pkg/datanode's block service
// and wired into a grpc.Server via RegisterBlockServiceServer.
type BlockServiceServer interface {
	StoreBlock(grpc.BidiStreamingServer[ChunkRequest, ChunkResponse]) error
	RetrieveBlock(*RetrieveRequest, grpc.ServerStreamingServer[ChunkResponse]) error
	CheckBlock(context.Context, *CheckRequest) (*CheckResponse, error)
	DeleteBlock(context.Context, *DeleteRequest) (*DeleteResponse, error)
	ReplicateBlock(context.Context, *ReplicateRequest) (*ReplicateResponse, error)
	GetTransferStats(context.Context, *TransferStatsRequest) (*TransferStatsResponse, error)
}

func RegisterBlockServiceServer(s grpc.ServiceRegistrar, srv BlockServiceServer) {
	s.RegisterService(&blockServiceDesc, srv)
}

var blockServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*BlockServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "CheckBlock", Handler: checkBlockHandler},
		{MethodName: "DeleteBlock", Handler: deleteBlockHandler},
		{MethodName: "ReplicateBlock", Handler: replicateBlockHandler},
		{MethodName: "GetTransferStats", Handler: getTransferStatsHandler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "StoreBlock", Handler: storeBlockHandler, ClientStreams: true, ServerStreams: true},
		{StreamName: "RetrieveBlock", Handler: retrieveBlockHandler, ServerStreams: true},
	},
	Metadata: "blockservice.proto",
}

func checkBlockHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	req := new(CheckRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(BlockServiceServer).CheckBlock(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: serviceName + "/CheckBlock"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(BlockServiceServer).CheckBlock(ctx, req.(*CheckRequest))
	}
	return interceptor(ctx, req, info, handler)
}

func deleteBlockHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	req := new(DeleteRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(BlockServiceServer).DeleteBlock(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: serviceName + "/DeleteBlock"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(BlockServiceServer).DeleteBlock(ctx, req.(*DeleteRequest))
	}
	return interceptor(ctx, req, info, handler)
}

func replicateBlockHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	req := new(ReplicateRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(BlockServiceServer).ReplicateBlock(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: serviceName + "/ReplicateBlock"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(BlockServiceServer).ReplicateBlock(ctx, req.(*ReplicateRequest))
	}
	return interceptor(ctx, req, info, handler)
}

func getTransferStatsHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	req := new(TransferStatsRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(BlockServiceServer).GetTransferStats(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: serviceName + "/GetTransferStats"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(BlockServiceServer).GetTransferStats(ctx, req.(*TransferStatsRequest))
	}
	return interceptor(ctx, req, info, handler)
}

func storeBlockHandler(srv interface{}, stream grpc.ServerStream) error {
	return srv.(BlockServiceServer).StoreBlock(&grpc.GenericServerStream[ChunkRequest, ChunkResponse]{ServerStream: stream})
}

func retrieveBlockHandler(srv interface{}, stream grpc.ServerStream) error {
	req := new(RetrieveRequest)
	if err := stream.RecvMsg(req); err != nil {
		return err
	}
	return srv.(BlockServiceServer).RetrieveBlock(req, &grpc.GenericServerStream[ChunkRequest, ChunkResponse]{ServerStream: stream})
}

// BlockServiceClient is the client-side stub, dialed once per known
// datanode address and reused across PUT/GET sessions.
type BlockServiceClient struct {
	cc *grpc.ClientConn
}

func NewBlockServiceClient(cc *grpc.ClientConn) *BlockServiceClient {
	return &BlockServiceClient{cc: cc}
}

func (c *BlockServiceClient) StoreBlock(ctx context.Context) (grpc.BidiStreamingClient[ChunkRequest, ChunkResponse], error) {
	stream, err := c.cc.NewStream(ctx, &blockServiceDesc.Streams[0], serviceName+"/StoreBlock", grpc.CallContentSubtype(codecName))
	if err != nil {
		return nil, err
	}
	return &grpc.GenericClientStream[ChunkRequest, ChunkResponse]{ClientStream: stream}, nil
}

func (c *BlockServiceClient) RetrieveBlock(ctx context.Context, req *RetrieveRequest) (grpc.ServerStreamingClient[ChunkResponse], error) {
	stream, err := c.cc.NewStream(ctx, &blockServiceDesc.Streams[1], serviceName+"/RetrieveBlock", grpc.CallContentSubtype(codecName))
	if err != nil {
		return nil, err
	}
	x := &grpc.GenericClientStream[ChunkRequest, ChunkResponse]{ClientStream: stream}
	if err := x.SendMsg(req); err != nil {
		return nil, err
	}
	if err := x.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}

func (c *BlockServiceClient) CheckBlock(ctx context.Context, req *CheckRequest) (*CheckResponse, error) {
	resp := new(CheckResponse)
	if err := c.cc.Invoke(ctx, serviceName+"/CheckBlock", req, resp, grpc.CallContentSubtype(codecName)); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *BlockServiceClient) DeleteBlock(ctx context.Context, req *DeleteRequest) (*DeleteResponse, error) {
	resp := new(DeleteResponse)
	if err := c.cc.Invoke(ctx, serviceName+"/DeleteBlock", req, resp, grpc.CallContentSubtype(codecName)); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *BlockServiceClient) ReplicateBlock(ctx context.Context, req *ReplicateRequest) (*ReplicateResponse, error) {
	resp := new(ReplicateResponse)
	if err := c.cc.Invoke(ctx, serviceName+"/ReplicateBlock", req, resp, grpc.CallContentSubtype(codecName)); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *BlockServiceClient) GetTransferStats(ctx context.Context, req *TransferStatsRequest) (*TransferStatsResponse, error) {
	resp := new(TransferStatsResponse)
	if err := c.cc.Invoke(ctx, serviceName+"/GetTransferStats", req, resp, grpc.CallContentSubtype(codecName)); err != nil {
		return nil, err
	}
	return resp, nil
}
