// Command lstore-server exposes a database over HTTP JSON endpoints and a
// gRPC service. The gRPC service uses a JSON codec with hand-rolled
// service descriptors, so no protobuf toolchain is required.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"net"
	"net/http"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"

	"github.com/SimonWaldherr/lstore"
)

// Flags
var (
	flagHTTP     = flag.String("http", ":8080", "HTTP listen address (empty to disable)")
	flagGRPC     = flag.String("grpc", ":9090", "gRPC listen address (empty to disable)")
	flagSnapshot = flag.String("snapshot", "", "Snapshot file to open/close (optional)")
	flagConfig   = flag.String("config", "", "Engine config YAML (optional)")
)

// Request/response types (shared by HTTP and gRPC)
type insertRequest struct {
	Table   string  `json:"table"`
	Columns []int64 `json:"columns"`
}
type selectRequest struct {
	Table      string `json:"table"`
	Key        int64  `json:"key"`
	Column     int    `json:"column"`
	Projection []int  `json:"projection"`
	Version    *int   `json:"version,omitempty"`
}
type updateRequest struct {
	Table   string   `json:"table"`
	Key     int64    `json:"key"`
	Columns []*int64 `json:"columns"` // null preserves the current value
}
type deleteRequest struct {
	Table string `json:"table"`
	Key   int64  `json:"key"`
}
type sumRequest struct {
	Table   string `json:"table"`
	Lo      int64  `json:"lo"`
	Hi      int64  `json:"hi"`
	Column  int    `json:"column"`
	Version *int   `json:"version,omitempty"`
}
type createTableRequest struct {
	Table      string `json:"table"`
	NumColumns int    `json:"num_columns"`
	KeyIndex   int    `json:"key_index"`
}

type boolResponse struct {
	Success  bool   `json:"success"`
	Error    string `json:"error,omitempty"`
	Duration string `json:"duration"`
}
type recordsResponse struct {
	Records  []recordJSON `json:"records"`
	Error    string       `json:"error,omitempty"`
	Duration string       `json:"duration"`
	Count    int          `json:"count"`
}
type recordJSON struct {
	Key     int64   `json:"key"`
	Columns []int64 `json:"columns"`
}
type sumResponse struct {
	Total    int64  `json:"total"`
	Found    bool   `json:"found"`
	Error    string `json:"error,omitempty"`
	Duration string `json:"duration"`
}

// gRPC JSON codec
type jsonCodec struct{}

func (jsonCodec) Name() string                       { return "json" }
func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

// gRPC service interface and descriptors (manual, no protobuf)
type LStoreServer interface {
	Insert(context.Context, *insertRequest) (*boolResponse, error)
	Select(context.Context, *selectRequest) (*recordsResponse, error)
	Update(context.Context, *updateRequest) (*boolResponse, error)
	Delete(context.Context, *deleteRequest) (*boolResponse, error)
	Sum(context.Context, *sumRequest) (*sumResponse, error)
}

func registerLStoreServer(s *grpc.Server, srv LStoreServer) {
	s.RegisterService(&grpc.ServiceDesc{
		ServiceName: "lstore.LStore",
		HandlerType: (*LStoreServer)(nil),
		Methods: []grpc.MethodDesc{
			{MethodName: "Insert", Handler: _LStore_Insert_Handler},
			{MethodName: "Select", Handler: _LStore_Select_Handler},
			{MethodName: "Update", Handler: _LStore_Update_Handler},
			{MethodName: "Delete", Handler: _LStore_Delete_Handler},
			{MethodName: "Sum", Handler: _LStore_Sum_Handler},
		},
		Streams:  []grpc.StreamDesc{},
		Metadata: "lstore", // informational
	}, srv)
}

func _LStore_Insert_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(insertRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(LStoreServer).Insert(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/lstore.LStore/Insert"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(LStoreServer).Insert(ctx, req.(*insertRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _LStore_Select_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(selectRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(LStoreServer).Select(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/lstore.LStore/Select"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(LStoreServer).Select(ctx, req.(*selectRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _LStore_Update_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(updateRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(LStoreServer).Update(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/lstore.LStore/Update"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(LStoreServer).Update(ctx, req.(*updateRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _LStore_Delete_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(deleteRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(LStoreServer).Delete(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/lstore.LStore/Delete"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(LStoreServer).Delete(ctx, req.(*deleteRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _LStore_Sum_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(sumRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(LStoreServer).Sum(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/lstore.LStore/Sum"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(LStoreServer).Sum(ctx, req.(*sumRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// server state
type server struct {
	db *lstore.Database
}

func (s *server) query(table string) (*lstore.Query, error) {
	t, err := s.db.GetTable(table)
	if err != nil {
		return nil, err
	}
	return lstore.NewQuery(t, nil), nil
}

// LStoreServer implementation
func (s *server) Insert(ctx context.Context, req *insertRequest) (*boolResponse, error) {
	start := time.Now()
	q, err := s.query(req.Table)
	if err != nil {
		return &boolResponse{Error: err.Error(), Duration: time.Since(start).String()}, nil
	}
	ok := q.Insert(req.Columns...)
	return &boolResponse{Success: ok, Duration: time.Since(start).String()}, nil
}

func (s *server) Select(ctx context.Context, req *selectRequest) (*recordsResponse, error) {
	start := time.Now()
	q, err := s.query(req.Table)
	if err != nil {
		return &recordsResponse{Error: err.Error(), Duration: time.Since(start).String()}, nil
	}

	var recs []*lstore.Record
	if req.Version != nil {
		recs = q.SelectVersion(req.Key, req.Column, req.Projection, *req.Version)
	} else {
		recs = q.Select(req.Key, req.Column, req.Projection)
	}

	out := make([]recordJSON, 0, len(recs))
	for _, r := range recs {
		out = append(out, recordJSON{Key: r.Key, Columns: r.Columns})
	}
	return &recordsResponse{Records: out, Count: len(out), Duration: time.Since(start).String()}, nil
}

func (s *server) Update(ctx context.Context, req *updateRequest) (*boolResponse, error) {
	start := time.Now()
	q, err := s.query(req.Table)
	if err != nil {
		return &boolResponse{Error: err.Error(), Duration: time.Since(start).String()}, nil
	}
	ok := q.Update(req.Key, req.Columns...)
	return &boolResponse{Success: ok, Duration: time.Since(start).String()}, nil
}

func (s *server) Delete(ctx context.Context, req *deleteRequest) (*boolResponse, error) {
	start := time.Now()
	q, err := s.query(req.Table)
	if err != nil {
		return &boolResponse{Error: err.Error(), Duration: time.Since(start).String()}, nil
	}
	ok := q.Delete(req.Key)
	return &boolResponse{Success: ok, Duration: time.Since(start).String()}, nil
}

func (s *server) Sum(ctx context.Context, req *sumRequest) (*sumResponse, error) {
	start := time.Now()
	q, err := s.query(req.Table)
	if err != nil {
		return &sumResponse{Error: err.Error(), Duration: time.Since(start).String()}, nil
	}

	if req.Version != nil {
		total := q.SumVersion(req.Lo, req.Hi, req.Column, *req.Version)
		return &sumResponse{Total: total, Found: true, Duration: time.Since(start).String()}, nil
	}
	total, found := q.Sum(req.Lo, req.Hi, req.Column)
	return &sumResponse{Total: total, Found: found, Duration: time.Since(start).String()}, nil
}

// HTTP handlers
func handleJSON[Req any, Resp any](fn func(context.Context, *Req) (*Resp, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		req := new(Req)
		if err := json.NewDecoder(r.Body).Decode(req); err != nil {
			http.Error(w, "Invalid JSON: "+err.Error(), http.StatusBadRequest)
			return
		}
		resp, _ := fn(r.Context(), req)
		writeJSON(w, resp)
	}
}

func (s *server) handleCreateTable(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req createTableRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}
	start := time.Now()
	if _, err := s.db.CreateTable(req.Table, req.NumColumns, req.KeyIndex); err != nil {
		writeJSON(w, &boolResponse{Error: err.Error(), Duration: time.Since(start).String()})
		return
	}
	writeJSON(w, &boolResponse{Success: true, Duration: time.Since(start).String()})
}

func (s *server) handleStatus(w http.ResponseWriter, r *http.Request) {
	stats := s.db.BufferPool().Stats()
	writeJSON(w, map[string]any{
		"ok":     true,
		"time":   time.Now().Format(time.RFC3339),
		"tables": s.db.Tables(),
		"cache": map[string]any{
			"cached":    stats.Cached,
			"hits":      stats.Hits,
			"misses":    stats.Misses,
			"evictions": stats.Evictions,
		},
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func main() {
	flag.Parse()

	cfg := lstore.DefaultEngineConfig()
	if *flagConfig != "" {
		var err error
		cfg, err = lstore.LoadConfig(*flagConfig)
		if err != nil {
			log.Fatalf("load config: %v", err)
		}
	}

	srv := &server{db: lstore.NewDatabaseWithConfig(cfg)}
	if *flagSnapshot != "" {
		if err := srv.db.Open(*flagSnapshot); err != nil {
			log.Fatalf("open snapshot: %v", err)
		}
		defer srv.db.Close()
	}

	// Register JSON codec for gRPC
	encoding.RegisterCodec(jsonCodec{})

	// Start gRPC server
	if *flagGRPC != "" {
		go func() {
			lis, err := net.Listen("tcp", *flagGRPC)
			if err != nil {
				log.Printf("gRPC listen error: %v", err)
				return
			}
			gs := grpc.NewServer()
			registerLStoreServer(gs, srv)
			log.Printf("gRPC listening on %s", *flagGRPC)
			if err := gs.Serve(lis); err != nil {
				log.Printf("gRPC serve error: %v", err)
			}
		}()
	}

	// Start HTTP server
	if *flagHTTP != "" {
		mux := http.NewServeMux()
		mux.HandleFunc("/api/table", srv.handleCreateTable)
		mux.HandleFunc("/api/insert", handleJSON(srv.Insert))
		mux.HandleFunc("/api/select", handleJSON(srv.Select))
		mux.HandleFunc("/api/update", handleJSON(srv.Update))
		mux.HandleFunc("/api/delete", handleJSON(srv.Delete))
		mux.HandleFunc("/api/sum", handleJSON(srv.Sum))
		mux.HandleFunc("/api/status", srv.handleStatus)
		log.Printf("HTTP listening on %s", *flagHTTP)
		if err := http.ListenAndServe(*flagHTTP, mux); err != nil {
			log.Fatalf("HTTP serve error: %v", err)
		}
	} else {
		// If HTTP disabled, block on gRPC only
		select {}
	}
}
