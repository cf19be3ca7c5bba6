package internal

import (
	"encoding/json"
	"errors"
	"fmt"
	"github.com/julienschmidt/httprouter"
	"html/template"
	"net"
	"net/http"
	"storefront/config"
	"storefront/entity"
	"storefront/services"
)

const (
	checkout         = "/checkout"
	checkoutForm     = "/checkout/:txnid/form"
	paymentSuccess   = "/payment/success"
	paymentFailure   = "/payment/failure"
	transactionState = "/transaction/:txnid"
	reconcile        = "/reconcile/:txnid"
	refund           = "/refund/:txnid"
	metricsPath      = "/metrics"

	maxBodySize = 64 << 10
)

var redirectForm = template.Must(template.New("redirect").Parse(`<!DOCTYPE html>
<html>
<body onload="document.forms[0].submit()">
<form method="post" action="{{.Action}}">
{{range $name, $values := .Fields}}{{range $values}}<input type="hidden" name="{{$name}}" value="{{.}}">
{{end}}{{end}}<noscript><button type="submit">Continue to payment</button></noscript>
</form>
</body>
</html>
`))

type Server struct {
	conf       *config.Config
	httpServer *http.Server
	payments   services.Payments
	logger     services.LogHandler
	metrics    *Metrics
}

type refundRequest struct {
	Amount string `json:"amount"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func NewServer(conf *config.Config) *Server {

	server := Server{
		conf: conf,
	}

	// register itself as a router for httpServer handler
	router := httprouter.New()
	server.Register(router)
	server.httpServer = &http.Server{
		Handler: router,
	}

	return &server
}

func (s *Server) Register(router *httprouter.Router) {
	router.POST(checkout, s.checkout)
	router.GET(checkoutForm, s.checkoutForm)
	router.POST(paymentSuccess, s.paymentNotify)
	router.POST(paymentFailure, s.paymentNotify)
	router.GET(transactionState, s.transaction)
	router.POST(reconcile, s.reconcile)
	router.POST(refund, s.refund)
	router.GET(metricsPath, s.metricsHandler)
}

// Handler exposes the router, e.g. for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) SetPaymentsService(payments services.Payments) {
	s.payments = payments
}

func (s *Server) SetLogger(logger services.LogHandler) {
	s.logger = logger
}

func (s *Server) SetMetrics(metrics *Metrics) {
	s.metrics = metrics
}

func (s *Server) Start() error {
	if s.conf == nil {
		return fmt.Errorf("configuration not loaded")
	}

	serverAddress := fmt.Sprintf("%s:%s", s.conf.Listen.BindIP, s.conf.Listen.Port)
	listener, err := net.Listen("tcp", serverAddress)
	if err != nil {
		return err
	}

	if s.conf.Listen.TLS {
		s.logger.Info(fmt.Sprintf("starting https TLS on %s", serverAddress))
		err = s.httpServer.ServeTLS(listener, s.conf.Listen.CertFile, s.conf.Listen.KeyFile)
	} else {
		s.logger.Info(fmt.Sprintf("starting http on %s", serverAddress))
		err = s.httpServer.Serve(listener)
	}

	return err
}

func (s *Server) checkout(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx := WithRequestID(r.Context())
	reqID := GetRequestID(ctx)

	var input entity.CheckoutInput
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize)).Decode(&input); err != nil {
		s.logger.Warn(fmt.Sprintf("[%s] checkout: decode request body: %v", reqID, err))
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	request, err := s.payments.Checkout(ctx, input)
	if err != nil {
		s.writeError(w, reqID, "checkout", err)
		return
	}
	s.writeJSON(w, http.StatusOK, request)
}

func (s *Server) checkoutForm(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	ctx := WithRequestID(r.Context())
	reqID := GetRequestID(ctx)

	transaction, err := s.payments.GetTransaction(ctx, ps.ByName("txnid"))
	if err != nil {
		s.writeError(w, reqID, "checkout form", err)
		return
	}
	if transaction.Status != entity.StatusPending {
		s.writeJSON(w, http.StatusConflict, errorResponse{Error: fmt.Sprintf("transaction is %s", transaction.Status)})
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	err = redirectForm.Execute(w, struct {
		Action string
		Fields map[string][]string
	}{
		Action: transaction.Request.Endpoint,
		Fields: transaction.Request.Form(),
	})
	if err != nil {
		s.logger.Error(fmt.Sprintf("[%s] checkout form: render", reqID), err)
	}
}

func (s *Server) paymentNotify(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx := WithRequestID(r.Context())
	reqID := GetRequestID(ctx)

	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := r.ParseForm(); err != nil {
		s.logger.Error(fmt.Sprintf("[%s] payment notify: parse form", reqID), err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	verdict, err := s.payments.Notify(ctx, r.PostForm)
	if err != nil {
		s.writeError(w, reqID, "payment notify", err)
		return
	}
	if !verdict.Verified {
		s.writeJSON(w, http.StatusForbidden, verdict)
		return
	}
	s.writeJSON(w, http.StatusOK, verdict)
}

func (s *Server) transaction(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	ctx := WithRequestID(r.Context())
	reqID := GetRequestID(ctx)

	transaction, err := s.payments.GetTransaction(ctx, ps.ByName("txnid"))
	if err != nil {
		s.writeError(w, reqID, "get transaction", err)
		return
	}
	s.writeJSON(w, http.StatusOK, transaction)
}

func (s *Server) reconcile(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	ctx := WithRequestID(r.Context())
	reqID := GetRequestID(ctx)

	transactionId := ps.ByName("txnid")
	s.logger.Info(fmt.Sprintf("[%s] processing request: reconcile %s", reqID, transactionId))
	transaction, err := s.payments.Reconcile(ctx, transactionId)
	if err != nil {
		s.writeError(w, reqID, "reconcile "+transactionId, err)
		return
	}
	s.writeJSON(w, http.StatusOK, transaction)
}

func (s *Server) refund(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	ctx := WithRequestID(r.Context())
	reqID := GetRequestID(ctx)

	transactionId := ps.ByName("txnid")
	var body refundRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize)).Decode(&body); err != nil {
		s.logger.Warn(fmt.Sprintf("[%s] refund: decode request body: %v", reqID, err))
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	s.logger.Info(fmt.Sprintf("[%s] processing request: refund %s, amount %s", reqID, transactionId, body.Amount))
	result, err := s.payments.Refund(ctx, transactionId, body.Amount)
	if err != nil {
		s.writeError(w, reqID, "refund "+transactionId, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) metricsHandler(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if s.metrics == nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	s.metrics.Handler().ServeHTTP(w, r)
}

func (s *Server) writeError(w http.ResponseWriter, reqID, operation string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error(fmt.Sprintf("[%s] %s", reqID, operation), err)
	} else {
		s.logger.Warn(fmt.Sprintf("[%s] %s: %v", reqID, operation, err))
	}
	s.writeJSON(w, status, errorResponse{Error: err.Error()})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("write response", err)
	}
}

func statusFor(err error) int {
	var configErr *entity.ConfigurationError
	switch {
	case errors.Is(err, entity.ErrInvalidAmount),
		errors.Is(err, entity.ErrInvalidBuyer),
		errors.Is(err, entity.ErrInvalidProduct),
		errors.Is(err, entity.ErrInvalidTransactionId):
		return http.StatusBadRequest
	case errors.Is(err, entity.ErrTransactionNotFound):
		return http.StatusNotFound
	case errors.Is(err, entity.ErrDuplicateTransaction),
		errors.Is(err, entity.ErrRefundNotAllowed),
		errors.Is(err, entity.ErrAmountMismatch):
		return http.StatusConflict
	case entity.IsGatewayCommunication(err):
		return http.StatusBadGateway
	case errors.As(err, &configErr):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
