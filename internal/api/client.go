// Package api provides the typed REST client for the gestion-ventes
// backend.
//
// All response shape handling lives at this boundary: list endpoints
// return a single {count, results} envelope, and create endpoints
// return the created entity. Callers never inspect raw payloads.
//
// Credentials are attached through a caller-supplied TokenFunc; token
// refresh itself is outside the sync core. A token that cannot be
// produced surfaces as an auth-class error, which the sync engine
// treats as fatal for the current pass.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/amparachrist-beep/gestion-ventes-sync/internal/model"
)

// TokenFunc returns a bearer token valid for the next request.
type TokenFunc func(ctx context.Context) (string, error)

// Client is the REST client consumed by the sync engine.
type Client struct {
	baseURL string
	http    *http.Client
	token   TokenFunc
	logger  *log.Logger
}

// listEnvelope is the single well-typed list response contract.
type listEnvelope struct {
	Count   int             `json:"count"`
	Results json.RawMessage `json:"results"`
}

// createVenteRequest is the create-sale payload. The offline_id rides
// along so the server can deduplicate a retried submission.
type createVenteRequest struct {
	OfflineID    string  `json:"offline_id"`
	ProduitID    int64   `json:"produit_id"`
	Quantite     int64   `json:"quantite"`
	MontantTotal float64 `json:"montant_total"`
	BoutiqueID   int64   `json:"boutique_id"`
	VendeurID    int64   `json:"vendeur_id,omitempty"`
	ClientID     *int64  `json:"client_id,omitempty"`
	Note         string  `json:"note,omitempty"`
	DateVente    string  `json:"date_vente"`
}

type createDepenseRequest struct {
	OfflineID   string  `json:"offline_id"`
	Montant     float64 `json:"montant"`
	Categorie   string  `json:"categorie"`
	BoutiqueID  int64   `json:"boutique_id"`
	DateDepense string  `json:"date_depense"`
	Description string  `json:"description,omitempty"`
}

// New creates a REST client for the given base URL.
//
// If httpClient is nil a default client is used; per-call deadlines
// are the caller's responsibility (the sync engine bounds every call
// with a context timeout). If logger is nil, a default stderr logger
// is used.
func New(baseURL string, token TokenFunc, httpClient *http.Client, logger *log.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if logger == nil {
		logger = log.New(os.Stderr, "[api] ", log.LstdFlags)
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
		token:   token,
		logger:  logger,
	}
}

// CreateVente submits a pending sale. The server deduplicates on
// offline_id, so resubmitting after a dropped response is safe.
func (c *Client) CreateVente(ctx context.Context, v *model.VentePending) (*model.Vente, error) {
	req := createVenteRequest{
		OfflineID:    v.OfflineID,
		ProduitID:    v.ProduitID,
		Quantite:     v.Quantite,
		MontantTotal: v.MontantTotal,
		BoutiqueID:   v.BoutiqueID,
		VendeurID:    v.VendeurID,
		ClientID:     v.ClientID,
		Note:         v.Note,
		DateVente:    v.CreatedAt.UTC().Format(time.RFC3339Nano),
	}

	var created model.Vente
	if err := c.post(ctx, "/ventes/", req, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// CreateDepense submits a pending expense with the same idempotency
// contract as CreateVente.
func (c *Client) CreateDepense(ctx context.Context, d *model.DepensePending) (*model.Depense, error) {
	req := createDepenseRequest{
		OfflineID:   d.OfflineID,
		Montant:     d.Montant,
		Categorie:   d.Categorie,
		BoutiqueID:  d.BoutiqueID,
		DateDepense: d.DateDepense.UTC().Format(time.RFC3339Nano),
		Description: d.Description,
	}

	var created model.Depense
	if err := c.post(ctx, "/depenses/", req, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// ListProduits fetches the authoritative product catalog.
func (c *Client) ListProduits(ctx context.Context) ([]*model.Produit, error) {
	var produits []*model.Produit
	if err := c.getList(ctx, "/produits/", &produits); err != nil {
		return nil, err
	}
	return produits, nil
}

// ListClients fetches the authoritative client catalog.
func (c *Client) ListClients(ctx context.Context) ([]*model.Client, error) {
	var clients []*model.Client
	if err := c.getList(ctx, "/clients/", &clients); err != nil {
		return nil, err
	}
	return clients, nil
}

// Ping checks reachability of the backend without authentication.
// Used by the connectivity monitor.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.baseURL+"/", nil)
	if err != nil {
		return fmt.Errorf("failed to build ping request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &Error{Class: ClassConnectivity, Message: err.Error(), Err: err}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	// Any HTTP response at all proves the network path; auth and
	// routing errors are someone else's problem here.
	return nil
}

func (c *Client) post(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s request: %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build %s request: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req, out)
}

func (c *Client) getList(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to build %s request: %w", path, err)
	}

	var envelope listEnvelope
	if err := c.do(req, &envelope); err != nil {
		return err
	}

	if err := json.Unmarshal(envelope.Results, out); err != nil {
		return &Error{
			Class:   ClassValidation,
			Message: fmt.Sprintf("malformed results in %s response: %v", path, err),
			Err:     err,
		}
	}
	return nil
}

func (c *Client) do(req *http.Request, out any) error {
	if c.token != nil {
		tok, err := c.token(req.Context())
		if err != nil {
			return &Error{Class: ClassAuth, Message: fmt.Sprintf("token unavailable: %v", err), Err: err}
		}
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &Error{Class: ClassConnectivity, Message: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return &Error{Class: ClassConnectivity, Message: fmt.Sprintf("failed to read response: %v", err), Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &Error{
			Class:      classifyStatus(resp.StatusCode),
			StatusCode: resp.StatusCode,
			Message:    serverMessage(data, resp.StatusCode),
		}
		c.logger.Printf("%s %s rejected: %v", req.Method, req.URL.Path, apiErr)
		return apiErr
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &Error{
			Class:      ClassValidation,
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("malformed response body: %v", err),
			Err:        err,
		}
	}
	return nil
}

// serverMessage extracts a diagnostic string from an error body.
func serverMessage(body []byte, status int) string {
	var payload struct {
		Detail  string `json:"detail"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if payload.Detail != "" {
			return payload.Detail
		}
		if payload.Message != "" {
			return payload.Message
		}
	}

	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return http.StatusText(status)
	}
	if len(trimmed) > 200 {
		trimmed = trimmed[:200]
	}
	return trimmed
}
