package api_server

import (
	"context"
	"encoding/json"
	"errors"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/securerx/go-securerx/api_helper"
	"github.com/securerx/go-securerx/ledger"
	"github.com/securerx/go-securerx/node_api"
	"github.com/securerx/go-securerx/transaction"
	"github.com/securerx/go-securerx/utils"
	"github.com/ztrue/tracerr"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// MaxRequestSize bounds the body of a prescription request.
const MaxRequestSize = 1 << 20

var (
	ErrorInvalidPrescription = utils.NewRxError("INVALID_PRESCRIPTION", "issuer_id, subject_id and payload are required")
	ErrorInvalidBlockIndex   = utils.NewRxError("INVALID_BLOCK_INDEX", "block index must be a non-negative integer")
	ErrorBlockNotFound       = utils.NewRxError("BLOCK_NOT_FOUND", "no block at this index")
	ErrorRouteNotFound       = utils.NewRxError("NOT_FOUND", "no such route")
	ErrorMethodNotAllowed    = utils.NewRxError("METHOD_NOT_ALLOWED", "method not allowed on this route")
	ErrorInternal            = utils.NewRxError("INTERNAL_ERROR", "internal error")
	ErrorAlreadyStarted      = utils.NewRxError("API_SERVER_ALREADY_STARTED", "server is already started")
)

type Options struct {
	Ledger *ledger.Ledger
	NodeId string
	// MetricsHandler is served on /metrics when not nil.
	MetricsHandler http.Handler
	Logger         zerolog.Logger
}

type Server struct {
	ledger *ledger.Ledger
	nodeId string
	router *mux.Router
	logger zerolog.Logger

	lock       sync.Mutex
	httpServer *http.Server
	listener   net.Listener
}

func New(options *Options) *Server {
	s := &Server{
		ledger: options.Ledger,
		nodeId: options.NodeId,
		router: mux.NewRouter(),
		logger: options.Logger.With().Str("component", "apiServer").Logger(),
	}
	s.registerRoutes(options.MetricsHandler)
	return s
}

func (s *Server) registerRoutes(metricsHandler http.Handler) {
	s.router.HandleFunc("/health", s.healthHandler).Methods("GET")
	s.router.HandleFunc("/prescription", s.prescriptionHandler).Methods("POST")
	s.router.HandleFunc("/blocks", s.blocksHandler).Methods("GET")
	s.router.HandleFunc("/blocks/{index}", s.blockHandler).Methods("GET")
	s.router.HandleFunc("/chain/validate", s.validateHandler).Methods("GET")
	if metricsHandler != nil {
		s.router.Handle("/metrics", metricsHandler).Methods("GET")
	}
	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.errorResponse(w, r, http.StatusNotFound, tracerr.Wrap(ErrorRouteNotFound.AddDetails(r.URL.Path)))
	})
	s.router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.errorResponse(w, r, http.StatusMethodNotAllowed, tracerr.Wrap(ErrorMethodNotAllowed.AddDetails(r.Method+" "+r.URL.Path)))
	})
	s.router.Use(s.logRequests)
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("peer", r.Header.Get(api_helper.NodeIdHeader)).
			Dur("duration", time.Since(start)).
			Msg("Handled request")
	})
}

func (s *Server) jsonResponse(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	err := json.NewEncoder(w).Encode(body)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Cannot write response")
	}
}

func (s *Server) errorResponse(w http.ResponseWriter, r *http.Request, status int, err error) {
	serializableError := utils.ToSerializableError(err)
	detail := serializableError.Details
	if detail == "" {
		detail = serializableError.Description
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error().Str("path", r.URL.Path).Msg(tracerr.Sprint(err))
	} else {
		s.logger.Debug().Str("path", r.URL.Path).Int("status", status).Err(err).Msg("Request rejected")
	}
	s.jsonResponse(w, status, api_helper.ServerError{
		Code:   serializableError.Code,
		Id:     serializableError.Id,
		Detail: detail,
	})
}

func (s *Server) healthHandler(w http.ResponseWriter, _ *http.Request) {
	s.jsonResponse(w, http.StatusOK, node_api.HealthResponse{Status: "ok", NodeId: s.nodeId})
}

// prescriptionHandler signs the payload with a fresh key and appends it in a block of its own.
func (s *Server) prescriptionHandler(w http.ResponseWriter, r *http.Request) {
	var request node_api.PrescriptionRequest
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxRequestSize)).Decode(&request)
	if err != nil {
		s.errorResponse(w, r, http.StatusBadRequest, tracerr.Wrap(ErrorInvalidPrescription.AddDetails(err.Error())))
		return
	}
	issuerId := utils.NormalizeString(request.IssuerId)
	subjectId := utils.NormalizeString(request.SubjectId)
	if issuerId == "" || subjectId == "" || request.Payload == "" {
		s.errorResponse(w, r, http.StatusBadRequest, tracerr.Wrap(ErrorInvalidPrescription))
		return
	}

	tx, _, err := transaction.Issue(issuerId, subjectId, request.Payload)
	if err != nil {
		s.errorResponse(w, r, http.StatusInternalServerError, tracerr.Wrap(err))
		return
	}
	block, err := s.ledger.Append([]transaction.Transaction{*tx})
	if err != nil {
		s.errorResponse(w, r, http.StatusInternalServerError, tracerr.Wrap(err))
		return
	}
	blockHash, err := block.Hash()
	if err != nil {
		s.errorResponse(w, r, http.StatusInternalServerError, tracerr.Wrap(err))
		return
	}
	s.logger.Info().Uint64("index", block.Index).Str("issuer", issuerId).Msg("Prescription recorded")
	s.jsonResponse(w, http.StatusCreated, node_api.PrescriptionResponse{
		Status:     "success",
		BlockIndex: block.Index,
		BlockHash:  blockHash,
		PublicKey:  tx.PublicKey.Hex(),
	})
}

func (s *Server) blocksHandler(w http.ResponseWriter, _ *http.Request) {
	s.jsonResponse(w, http.StatusOK, s.ledger.Snapshot())
}

func (s *Server) blockHandler(w http.ResponseWriter, r *http.Request) {
	rawIndex := mux.Vars(r)["index"]
	index, err := strconv.ParseUint(rawIndex, 10, 64)
	if err != nil {
		s.errorResponse(w, r, http.StatusBadRequest, tracerr.Wrap(ErrorInvalidBlockIndex.AddDetails(rawIndex)))
		return
	}
	block, err := s.ledger.Get(index)
	if errors.Is(err, ledger.ErrorBlockNotFound) {
		s.errorResponse(w, r, http.StatusNotFound, tracerr.Wrap(ErrorBlockNotFound.AddDetails(rawIndex)))
		return
	} else if err != nil { // cannot cover
		s.errorResponse(w, r, http.StatusInternalServerError, tracerr.Wrap(err))
		return
	}
	s.jsonResponse(w, http.StatusOK, block)
}

func (s *Server) validateHandler(w http.ResponseWriter, _ *http.Request) {
	height, err := s.ledger.ValidateWithHeight()
	response := node_api.ValidationResponse{Valid: true, Height: height}
	if err != nil {
		response.Valid = false
		response.Error = err.Error()
	}
	s.jsonResponse(w, http.StatusOK, response)
}

// Start listens on addr and serves in a background goroutine. Listen errors are returned synchronously.
func (s *Server) Start(addr string) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.httpServer != nil {
		return tracerr.Wrap(ErrorAlreadyStarted)
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return tracerr.Wrap(err)
	}
	s.listener = listener
	s.httpServer = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
	}
	s.logger.Info().Str("addr", listener.Addr().String()).Msg("API server listening")

	go func(httpServer *http.Server) {
		err := httpServer.Serve(listener)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("API server stopped")
		}
	}(s.httpServer)
	return nil
}

// Addr returns the address the server listens on, or "" if it is not started.
func (s *Server) Addr() string {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Shutdown stops accepting connections and waits for in-flight requests until ctx is done.
func (s *Server) Shutdown(ctx context.Context) error {
	s.lock.Lock()
	httpServer := s.httpServer
	s.httpServer = nil
	s.listener = nil
	s.lock.Unlock()

	if httpServer == nil {
		return nil
	}
	err := httpServer.Shutdown(ctx)
	if err != nil {
		return tracerr.Wrap(err)
	}
	s.logger.Info().Msg("API server stopped")
	return nil
}
