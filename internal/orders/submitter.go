// Package orders posts the finished cart to the ERP as a sales order or a
// consignment delivery.
package orders

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/Keller65/iSync-sub000/internal/cart"
	"github.com/Keller65/iSync-sub000/internal/domain"
	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// DocType selects the ERP document a submission produces.
type DocType string

const (
	DocOrder       DocType = "order"
	DocConsignment DocType = "consignment"
)

type docLine struct {
	ItemCode      string  `json:"itemCode"`
	Quantity      int     `json:"quantity"`
	PriceList     string  `json:"priceList,omitempty"`
	PriceAfterVAT float64 `json:"priceAfterVAT"`
	TaxCode       string  `json:"taxCode,omitempty"`
}

type docRequest struct {
	CardCode string    `json:"cardCode"`
	DocDate  string    `json:"docDate"`
	Comments string    `json:"comments,omitempty"`
	Lines    []docLine `json:"lines"`
}

// Receipt is the server's acknowledgement of a created document.
type Receipt struct {
	DocEntry int     `json:"docEntry"`
	Type     DocType `json:"type"`
	Total    float64 `json:"total"`
	Lines    int     `json:"lines"`
}

// SubmitParams describe the document header. Lines always come from the cart.
type SubmitParams struct {
	CardCode    string
	PriceListID string
	Comments    string
}

type Config struct {
	BaseURL     string
	Token       func() string
	Tenant      string
	Logger      *slog.Logger
	HTTPTimeout time.Duration
}

// Submitter turns the cart into an ERP document. Submission is the only
// operation that empties the cart, and only after the server confirmed the
// document; any failure leaves the cart intact for retry.
type Submitter struct {
	httpClient *http.Client
	baseURL    string
	token      func() string
	tenant     string
	log        *slog.Logger
	now        func() time.Time
	newKey     func() string
}

func NewSubmitter(cfg Config) (*Submitter, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if cfg.Token == nil {
		return nil, fmt.Errorf("token provider is required")
	}
	timeout := cfg.HTTPTimeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &Submitter{
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		token:   cfg.Token,
		tenant:  cfg.Tenant,
		log:     cfg.Logger,
		now:     time.Now,
		newKey:  uuid.NewString,
	}, nil
}

// SubmitOrder posts the cart as a sales order.
func (s *Submitter) SubmitOrder(ctx context.Context, store *cart.Store, params SubmitParams) (*Receipt, error) {
	return s.submit(ctx, store, params, DocOrder, "/orders")
}

// SubmitConsignment posts the cart as a consignment delivery.
func (s *Submitter) SubmitConsignment(ctx context.Context, store *cart.Store, params SubmitParams) (*Receipt, error) {
	return s.submit(ctx, store, params, DocConsignment, "/consignments")
}

func (s *Submitter) submit(ctx context.Context, store *cart.Store, params SubmitParams, docType DocType, path string) (*Receipt, error) {
	if params.CardCode == "" {
		return nil, &domain.ValidationError{Field: "cardCode", Reason: "customer is required"}
	}

	lines := store.Lines()
	if len(lines) == 0 {
		return nil, &domain.ValidationError{Field: "lines", Reason: "cart is empty"}
	}

	doc := docRequest{
		CardCode: params.CardCode,
		DocDate:  s.now().Format("2006-01-02"),
		Comments: params.Comments,
		Lines:    make([]docLine, len(lines)),
	}
	for i, l := range lines {
		doc.Lines[i] = docLine{
			ItemCode:      l.ItemCode,
			Quantity:      l.Quantity,
			PriceList:     params.PriceListID,
			PriceAfterVAT: l.UnitPrice,
			TaxCode:       l.TaxType,
		}
	}
	total := store.Total()

	docEntry, err := s.post(ctx, path, doc)
	if err != nil {
		return nil, err
	}

	// The server confirmed the document; only now may the cart go.
	store.Clear()
	s.log.Info("document submitted",
		"type", string(docType), "docEntry", docEntry, "lines", len(lines), "total", total)

	return &Receipt{
		DocEntry: docEntry,
		Type:     docType,
		Total:    total,
		Lines:    len(lines),
	}, nil
}

func (s *Submitter) post(ctx context.Context, path string, doc docRequest) (int, error) {
	payload, err := json.Marshal(doc)
	if err != nil {
		return 0, fmt.Errorf("encoding document: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return 0, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.token())
	// One key per explicit submit attempt: a transport-level retry of this
	// request cannot create a duplicate document.
	req.Header.Set("Idempotency-Key", s.newKey())
	if s.tenant != "" {
		req.Header.Set("X-Tenant", s.tenant)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return 0, &domain.NetworkError{Op: "POST " + path, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, &domain.NetworkError{Op: "POST " + path, Err: err}
	}

	if resp.StatusCode >= 400 {
		return 0, &domain.ServerError{Status: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	}

	return decodeDocEntry(body), nil
}

// decodeDocEntry pulls the server-assigned document id out of the response.
// docEntry is the canonical field; older endpoints answer with id.
func decodeDocEntry(data []byte) int {
	var ack struct {
		DocEntry *int `json:"docEntry"`
		ID       *int `json:"id"`
	}
	if err := json.Unmarshal(data, &ack); err != nil {
		return 0
	}
	if ack.DocEntry != nil {
		return *ack.DocEntry
	}
	if ack.ID != nil {
		return *ack.ID
	}
	return 0
}
