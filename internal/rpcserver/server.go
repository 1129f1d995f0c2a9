// Package rpcserver exposes the DSL evaluator and scoring engine as a gRPC
// service for remote callers. Adapted from the teacher's cmd/server/main.go:
// the same hand-registered grpc.ServiceDesc plus JSON codec pattern (no
// protoc step), applied to Evaluate/Score instead of Exec/Query.
package rpcserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"

	"github.com/quantkit/scoreengine/internal/lang"
	"github.com/quantkit/scoreengine/internal/scoring"
	"github.com/quantkit/scoreengine/internal/storage"
)

// EvaluateRequest runs a single DSL program against an explicit environment
// (no storage lookup), for ad-hoc expression testing.
type EvaluateRequest struct {
	Program string         `json:"program"`
	Env     map[string]any `json:"env"`
}

// EvaluateResponse carries the evaluated Value, JSON-shaped: a scalar
// number/bool, or an array (series elements may be null for missing).
type EvaluateResponse struct {
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

// ScoreRequest runs every configured rule over a stored instrument window.
type ScoreRequest struct {
	TsCode    string `json:"ts_code"`
	AdjType   string `json:"adj_type"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
}

// ScoreResponse is a scoring.Run flattened to JSON.
type ScoreResponse struct {
	RunID      string               `json:"run_id"`
	TradeDates []string             `json:"trade_dates"`
	Total      []float64            `json:"total"`
	Details    map[string][]float64 `json:"details"`
	Error      string               `json:"error,omitempty"`
}

// jsonCodec is the grpc.Codec the teacher registers in place of protobuf
// wire encoding — plain encoding/json, since neither side here generates
// .proto stubs.
type jsonCodec struct{}

func (jsonCodec) Name() string                      { return "json" }
func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// ScoreEngineServer is the hand-written RPC interface registered below,
// standing in for a protoc-generated service interface.
type ScoreEngineServer interface {
	Evaluate(context.Context, *EvaluateRequest) (*EvaluateResponse, error)
	Score(context.Context, *ScoreRequest) (*ScoreResponse, error)
}

func registerScoreEngineServer(s *grpc.Server, srv ScoreEngineServer) {
	s.RegisterService(&grpc.ServiceDesc{
		ServiceName: "scoreengine.ScoreEngine",
		HandlerType: (*ScoreEngineServer)(nil),
		Methods: []grpc.MethodDesc{
			{MethodName: "Evaluate", Handler: scoreEngineEvaluateHandler},
			{MethodName: "Score", Handler: scoreEngineScoreHandler},
		},
		Streams:  []grpc.StreamDesc{},
		Metadata: "scoreengine",
	}, srv)
}

func scoreEngineEvaluateHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(EvaluateRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ScoreEngineServer).Evaluate(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/scoreengine.ScoreEngine/Evaluate"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ScoreEngineServer).Evaluate(ctx, req.(*EvaluateRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func scoreEngineScoreHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(ScoreRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ScoreEngineServer).Score(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/scoreengine.ScoreEngine/Score"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ScoreEngineServer).Score(ctx, req.(*ScoreRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// Server implements ScoreEngineServer over a storage.Store and a compiled
// scoring.Engine.
type Server struct {
	Store  *storage.Store
	Engine *scoring.Engine
}

// NewServer wires a storage.Store and scoring.Engine into a Server.
func NewServer(store *storage.Store, engine *scoring.Engine) *Server {
	return &Server{Store: store, Engine: engine}
}

// Evaluate runs req.Program against req.Env with no storage lookup.
func (s *Server) Evaluate(ctx context.Context, req *EvaluateRequest) (*EvaluateResponse, error) {
	env := lang.NewEnvironment()
	for name, raw := range req.Env {
		v, err := valueFromJSON(raw)
		if err != nil {
			return &EvaluateResponse{Error: fmt.Sprintf("env[%s]: %v", name, err)}, nil
		}
		env.Set(name, v)
	}

	result, err := lang.EvalSource(req.Program, env)
	if err != nil {
		return &EvaluateResponse{Error: err.Error()}, nil
	}
	return &EvaluateResponse{Result: valueToJSON(result)}, nil
}

// Score loads req's instrument window from storage and runs every
// configured rule over it.
func (s *Server) Score(ctx context.Context, req *ScoreRequest) (*ScoreResponse, error) {
	dates, bound, err := s.Store.LoadSeries(req.TsCode, req.AdjType, req.StartDate, req.EndDate)
	if err != nil {
		return &ScoreResponse{Error: err.Error()}, nil
	}
	env := lang.NewEnvironment()
	for name, v := range bound {
		env.Set(name, v)
	}

	run, err := s.Engine.Score(req.TsCode, dates, env)
	if err != nil {
		return &ScoreResponse{Error: err.Error()}, nil
	}
	return &ScoreResponse{
		RunID:      run.ID.String(),
		TradeDates: run.TradeDates,
		Total:      run.Total,
		Details:    run.Details,
	}, nil
}

// valueFromJSON converts a JSON-decoded env entry (float64, bool, or []any
// with float64/nil/bool elements) into a lang.Value.
func valueFromJSON(raw any) (lang.Value, error) {
	switch x := raw.(type) {
	case float64:
		return lang.Num(x), nil
	case bool:
		return lang.Bool(x), nil
	case []any:
		out := make(lang.NumSeries, len(x))
		for i, elem := range x {
			switch e := elem.(type) {
			case nil:
				out[i] = nil
			case float64:
				v := e
				out[i] = &v
			case bool:
				v := 0.0
				if e {
					v = 1.0
				}
				out[i] = &v
			default:
				return nil, fmt.Errorf("unsupported series element type %T", elem)
			}
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported value type %T", raw)
	}
}

// valueToJSON converts a lang.Value into a JSON-marshalable shape.
func valueToJSON(v lang.Value) any {
	switch x := v.(type) {
	case lang.Num:
		return float64(x)
	case lang.Bool:
		return bool(x)
	case lang.NumSeries:
		return []*float64(x)
	case lang.BoolSeries:
		return []bool(x)
	default:
		return nil
	}
}

// ListenAndServe starts a gRPC listener at addr, blocking until the server
// stops or the listener errors.
func ListenAndServe(addr string, srv *Server) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %q: %w", addr, err)
	}
	gs := grpc.NewServer()
	registerScoreEngineServer(gs, srv)
	if err := gs.Serve(lis); err != nil {
		return fmt.Errorf("serve gRPC on %q: %w", addr, err)
	}
	return nil
}
