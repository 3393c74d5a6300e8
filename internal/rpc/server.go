// Package rpc implements the JSON-RPC 2.0 API of the airdrop daemon.
package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Klingon-tech/klingdrop/config"
	"github.com/Klingon-tech/klingdrop/internal/airdrop"
	"github.com/Klingon-tech/klingdrop/internal/distribution"
	"github.com/Klingon-tech/klingdrop/internal/history"
	klog "github.com/Klingon-tech/klingdrop/internal/log"
	"github.com/Klingon-tech/klingdrop/internal/notify"
	"github.com/Klingon-tech/klingdrop/internal/portfolio"
	"github.com/Klingon-tech/klingdrop/internal/wallet"
	"github.com/Klingon-tech/klingdrop/pkg/tx"
	"github.com/Klingon-tech/klingdrop/pkg/types"
)

// maxBodySize is the maximum allowed request body size (1 MB).
const maxBodySize = 1 << 20

// Server is the JSON-RPC 2.0 HTTP server.
type Server struct {
	addr        string
	portfolio   *portfolio.Portfolio
	keystore    *wallet.Keystore // For wallet_* keystore methods (nil = disabled).
	chain       wallet.Chain     // Backs wallets opened by wallet_connect.
	network     types.Network
	addresses   uint32                  // Addresses derived for new wallets.
	encParams   wallet.EncryptionParams // Keystore encryption for new wallets.
	params      airdrop.Params
	sink        notify.Sink   // Receives airdrop events (nil = none).
	history     history.Store // For airdrop_history and duplicate checks (nil = disabled).
	ws          http.Handler  // Mounted at /ws (nil = disabled).
	server      *http.Server
	logger      zerolog.Logger
	ln          net.Listener
	allowedNets []*net.IPNet // Empty = allow all.
	corsOrigins []string     // Empty = no CORS headers.

	mu         sync.Mutex
	local      *wallet.Local
	walletName string

	// sendMu keeps one airdrop in flight at a time.
	sendMu sync.Mutex
}

// New creates a new RPC server. The rpcCfg parameter controls IP filtering
// and CORS. A zero-value RPCConfig allows all IPs and disables CORS.
func New(addr string, pf *portfolio.Portfolio, rpcCfg ...config.RPCConfig) *Server {
	s := &Server{
		addr:      addr,
		portfolio: pf,
		network:   types.Mainnet,
		params:    airdrop.DefaultParams(),
		logger:    klog.RPC,
	}

	if len(rpcCfg) > 0 {
		s.allowedNets = parseAllowedIPs(rpcCfg[0].AllowedIPs)
		s.corsOrigins = rpcCfg[0].CORSOrigins
	}

	s.server = &http.Server{
		Handler:     s.Handler(),
		ReadTimeout: 30 * time.Second,
		// airdrop_send waits for explorer submission.
		WriteTimeout: 2 * time.Minute,
	}

	return s
}

// Handler returns the HTTP handler: JSON-RPC on / and the websocket
// hub on /ws.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleRequest)
	mux.HandleFunc("/ws", s.handleWebSocket)
	return mux
}

// parseAllowedIPs converts string IP/CIDR entries into net.IPNet.
func parseAllowedIPs(entries []string) []*net.IPNet {
	var nets []*net.IPNet
	for _, entry := range entries {
		_, ipNet, err := net.ParseCIDR(entry)
		if err == nil {
			nets = append(nets, ipNet)
			continue
		}
		// Try as a single IP (add /32 or /128).
		ip := net.ParseIP(entry)
		if ip == nil {
			continue
		}
		bits := 32
		if ip.To4() == nil {
			bits = 128
		}
		nets = append(nets, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
	}
	return nets
}

// Start begins listening and serving in a background goroutine.
// It returns immediately after the listener is bound.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("rpc listen: %w", err)
	}
	s.ln = ln

	go func() {
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("RPC server error")
		}
	}()

	return nil
}

// Addr returns the listener address (useful when bound to :0).
func (s *Server) Addr() string {
	if s.ln != nil {
		return s.ln.Addr().String()
	}
	return s.addr
}

// Stop gracefully shuts down the server and closes any open wallet.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := s.server.Shutdown(ctx)
	s.closeWallet()
	return err
}

// SetKeystore enables the keystore wallet methods. Opened wallets query
// chain and must belong to network.
func (s *Server) SetKeystore(ks *wallet.Keystore, chain wallet.Chain, network types.Network) {
	s.keystore = ks
	s.chain = chain
	s.network = network
	s.params.Network = network
}

// SetWalletDefaults sets the address count and keystore encryption
// applied to wallets created or imported over RPC.
func (s *Server) SetWalletDefaults(addresses uint32, params wallet.EncryptionParams) {
	s.addresses = addresses
	s.encParams = params
}

// SetAirdropParams sets the assembly constants. The network is kept.
func (s *Server) SetAirdropParams(p airdrop.Params) {
	p.Network = s.network
	s.params = p
}

// SetSink sets the sink receiving airdrop events.
func (s *Server) SetSink(sink notify.Sink) {
	s.sink = sink
}

// SetHistory sets the airdrop history store.
func (s *Server) SetHistory(h history.Store) {
	s.history = h
}

// SetWebSocket mounts h at /ws.
func (s *Server) SetWebSocket(h http.Handler) {
	s.ws = h
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.ws == nil {
		http.NotFound(w, r)
		return
	}
	if len(s.allowedNets) > 0 && !s.remoteAllowed(r) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	s.ws.ServeHTTP(w, r)
}

// handleRequest is the main HTTP handler for JSON-RPC requests.
func (s *Server) handleRequest(w http.ResponseWriter, r *http.Request) {
	// IP filtering.
	if len(s.allowedNets) > 0 && !s.remoteAllowed(r) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	// CORS headers.
	s.setCORSHeaders(w, r)

	// Handle CORS preflight.
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if r.Method != http.MethodPost {
		writeError(w, nil, CodeInvalidRequest, "only POST method is allowed")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize+1))
	if err != nil {
		writeError(w, nil, CodeParseError, "failed to read request body")
		return
	}
	if len(body) > maxBodySize {
		writeError(w, nil, CodeInvalidRequest, "request body too large")
		return
	}

	var req Request
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, nil, CodeParseError, "invalid JSON")
		return
	}

	if req.JSONRPC != "2.0" {
		writeError(w, req.ID, CodeInvalidRequest, "jsonrpc must be \"2.0\"")
		return
	}

	start := time.Now()
	result, rpcErr := s.dispatch(r.Context(), &req)
	ev := s.logger.Debug()
	if rpcErr != nil {
		ev = s.logger.Warn().Int("code", rpcErr.Code).Str("error", rpcErr.Message)
	}
	ev.Str("method", req.Method).Dur("duration", time.Since(start)).Msg("RPC call")

	if rpcErr != nil {
		writeJSON(w, Response{
			JSONRPC: "2.0",
			Error:   rpcErr,
			ID:      req.ID,
		})
		return
	}

	writeJSON(w, Response{
		JSONRPC: "2.0",
		Result:  result,
		ID:      req.ID,
	})
}

// dispatch routes a request to the appropriate handler.
func (s *Server) dispatch(ctx context.Context, req *Request) (interface{}, *Error) {
	switch req.Method {
	case "wallet_create":
		return s.handleWalletCreate(req)
	case "wallet_import":
		return s.handleWalletImport(req)
	case "wallet_list":
		return s.handleWalletList(req)
	case "wallet_connect":
		return s.handleWalletConnect(ctx, req)
	case "wallet_disconnect":
		return s.handleWalletDisconnect(req)
	case "wallet_status":
		return s.handleWalletStatus(req)
	case "wallet_holdings":
		return s.handleWalletHoldings(ctx, req)
	case "airdrop_preview":
		return s.handleAirdropPreview(ctx, req)
	case "airdrop_send":
		return s.handleAirdropSend(ctx, req)
	case "airdrop_history":
		return s.handleAirdropHistory(ctx, req)
	default:
		return nil, &Error{Code: CodeMethodNotFound, Message: fmt.Sprintf("method %q not found", req.Method)}
	}
}

// writeJSON writes a JSON-RPC response.
func writeJSON(w http.ResponseWriter, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// writeError writes a JSON-RPC error response.
func writeError(w http.ResponseWriter, id interface{}, code int, message string) {
	writeJSON(w, Response{
		JSONRPC: "2.0",
		Error:   &Error{Code: code, Message: message},
		ID:      id,
	})
}

func (s *Server) remoteAllowed(r *http.Request) bool {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return false
	}
	ip := net.ParseIP(host)
	return ip != nil && s.isIPAllowed(ip)
}

// isIPAllowed checks if the IP is in the allowed networks list.
func (s *Server) isIPAllowed(ip net.IP) bool {
	for _, n := range s.allowedNets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// setCORSHeaders adds CORS headers based on the configured origins.
func (s *Server) setCORSHeaders(w http.ResponseWriter, r *http.Request) {
	if len(s.corsOrigins) == 0 {
		return
	}

	origin := r.Header.Get("Origin")
	if origin == "" {
		return
	}

	allowed := false
	for _, o := range s.corsOrigins {
		if o == "*" {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			allowed = true
			break
		}
		if o == origin {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			allowed = true
			break
		}
	}

	if allowed {
		w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
	}
}

// parseParams unmarshals the request params into the given target.
func parseParams(req *Request, target interface{}) *Error {
	if req.Params == nil {
		return &Error{Code: CodeInvalidParams, Message: "params required"}
	}

	data, err := json.Marshal(req.Params)
	if err != nil {
		return &Error{Code: CodeInvalidParams, Message: "invalid params"}
	}

	if err := json.Unmarshal(data, target); err != nil {
		return &Error{Code: CodeInvalidParams, Message: fmt.Sprintf("invalid params: %v", err)}
	}
	return nil
}

// parseOptionalParams is parseParams for methods whose params may be
// omitted.
func parseOptionalParams(req *Request, target interface{}) *Error {
	if req.Params == nil {
		return nil
	}
	return parseParams(req, target)
}

// errorFor maps a domain error onto a JSON-RPC error object.
func errorFor(prefix string, err error) *Error {
	msg := fmt.Sprintf("%s: %v", prefix, err)
	switch {
	case airdrop.IsPrecondition(err),
		errors.Is(err, wallet.ErrNotConnected),
		errors.Is(err, portfolio.ErrNotConnected),
		errors.Is(err, tx.ErrInsufficientFunds),
		errors.Is(err, tx.ErrInsufficientTokens),
		errors.Is(err, tx.ErrChangeBelowMinimum):
		return &Error{Code: CodePrecondition, Message: msg}
	case errors.Is(err, wallet.ErrSigningRejected), errors.Is(err, portfolio.ErrStale):
		return &Error{Code: CodeRejected, Message: msg}
	case errors.Is(err, wallet.ErrWalletNotFound), errors.Is(err, history.ErrNotFound):
		return &Error{Code: CodeNotFound, Message: msg}
	case errors.Is(err, wallet.ErrWrongPassword),
		errors.Is(err, wallet.ErrWalletExists),
		errors.Is(err, airdrop.ErrInvalidPlan),
		errors.Is(err, airdrop.ErrUnknownEntity),
		errors.Is(err, airdrop.ErrNothingToSend),
		errors.Is(err, distribution.ErrDuplicateEntity),
		errors.Is(err, distribution.ErrTypeMismatch),
		errors.Is(err, distribution.ErrUnsupportedEntity),
		errors.Is(err, distribution.ErrNegativeAmount),
		errors.Is(err, distribution.ErrAmountOverflow),
		errors.Is(err, distribution.ErrRecordNotFound):
		return &Error{Code: CodeInvalidParams, Message: msg}
	default:
		return &Error{Code: CodeInternalError, Message: msg}
	}
}
