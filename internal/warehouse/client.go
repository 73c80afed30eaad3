package warehouse

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/imagingworks/pixels-dicom-connector/internal/config"
	"github.com/imagingworks/pixels-dicom-connector/internal/metrics"
	"github.com/imagingworks/pixels-dicom-connector/internal/query"
	"github.com/rs/zerolog/log"
)

const statementPath = "sql/statements/"

// ErrTooManyChunks is returned when a result set spans more continuation
// pages than the configured guard allows. Callers wanting less data must
// pass pagination limits into the query builder instead.
var ErrTooManyChunks = errors.New("result exceeded maximum chunk count")

// QueryExecutionError is a transport failure or warehouse-reported
// cancellation during statement execution or chunk continuation. Partial
// rows accumulated before the failure are discarded.
type QueryExecutionError struct {
	Code    string
	Message string
	Err     error
}

func (e *QueryExecutionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("query execution failed: %v", e.Err)
	}
	return fmt.Sprintf("query execution failed: %s: %s", e.Code, e.Message)
}

func (e *QueryExecutionError) Unwrap() error { return e.Err }

// Client executes statements against the SQL warehouse and talks to its
// storage filesystem API. Connection settings are fixed at construction
// and read-only afterwards.
type Client struct {
	httpClient  *http.Client
	baseURL     string // <host>/api/2.0/
	token       string
	warehouseID string
	maxChunks   int
}

// NewClient builds a client from validated warehouse configuration
func NewClient(cfg config.WarehouseConfig) *Client {
	host := cfg.ServerHostname
	if !strings.Contains(host, "://") {
		host = "https://" + host
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		baseURL:     strings.TrimRight(host, "/") + "/api/2.0/",
		token:       cfg.Token,
		warehouseID: cfg.WarehouseID(),
		maxChunks:   cfg.MaxResultChunks,
	}
}

// BaseURL returns the API base URL, used as the prefix of derived imageIds
func (c *Client) BaseURL() string {
	return c.baseURL
}

// FileURL returns the retrieval URL for a file under the storage
// filesystem namespace.
func (c *Client) FileURL(relativePath string) string {
	return c.baseURL + "fs/files/" + relativePath
}

type statementRequest struct {
	WarehouseID   string            `json:"warehouse_id"`
	Statement     string            `json:"statement"`
	Parameters    []query.Parameter `json:"parameters,omitempty"`
	WaitTimeout   string            `json:"wait_timeout"`
	OnWaitTimeout string            `json:"on_wait_timeout"`
}

type statementStatus struct {
	State string          `json:"state"`
	Error *statementError `json:"error,omitempty"`
}

type statementError struct {
	ErrorCode string `json:"error_code"`
	Message   string `json:"message"`
}

type statementResult struct {
	DataArray             [][]string `json:"data_array"`
	NextChunkInternalLink string     `json:"next_chunk_internal_link,omitempty"`
}

type statementResponse struct {
	Status *statementStatus `json:"status,omitempty"`
	Result *statementResult `json:"result,omitempty"`
}

// chunk responses carry the data array and continuation link at the top
// level rather than under result
type chunkResponse struct {
	DataArray             [][]string `json:"data_array"`
	NextChunkInternalLink string     `json:"next_chunk_internal_link,omitempty"`
}

// ExecuteStatement submits a statement and follows continuation links
// sequentially until the full result is retrieved. The contract is
// all-or-nothing: on any failure the accumulated rows are discarded.
func (c *Client) ExecuteStatement(ctx context.Context, stmt query.Statement) ([][]string, error) {
	start := time.Now()

	body, err := json.Marshal(statementRequest{
		WarehouseID:   c.warehouseID,
		Statement:     stmt.SQL,
		Parameters:    stmt.Parameters,
		WaitTimeout:   stmt.WaitTimeout,
		OnWaitTimeout: stmt.TimeoutAction,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode statement request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+statementPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	var resp statementResponse
	if err := c.doJSON(req, &resp); err != nil {
		metrics.StatementsTotal.WithLabelValues("error").Inc()
		return nil, &QueryExecutionError{Err: err}
	}

	if resp.Status != nil && (resp.Status.State == "FAILED" || resp.Status.State == "CANCELED" || resp.Status.State == "CLOSED") {
		metrics.StatementsTotal.WithLabelValues("error").Inc()
		qerr := &QueryExecutionError{Code: resp.Status.State, Message: resp.Status.State}
		if resp.Status.Error != nil {
			qerr.Code = resp.Status.Error.ErrorCode
			qerr.Message = resp.Status.Error.Message
		}
		return nil, qerr
	}
	if resp.Result == nil {
		metrics.StatementsTotal.WithLabelValues("error").Inc()
		return nil, &QueryExecutionError{Code: "EMPTY_RESPONSE", Message: "warehouse response carried no result"}
	}

	rows := resp.Result.DataArray
	link := resp.Result.NextChunkInternalLink

	chunks := 0
	for link != "" {
		chunks++
		if chunks > c.maxChunks {
			return nil, ErrTooManyChunks
		}

		chunk, err := c.fetchChunk(ctx, link)
		if err != nil {
			metrics.StatementsTotal.WithLabelValues("error").Inc()
			return nil, err
		}
		metrics.ChunksFollowed.Inc()
		rows = append(rows, chunk.DataArray...)
		link = chunk.NextChunkInternalLink
	}

	metrics.StatementsTotal.WithLabelValues("success").Inc()
	metrics.RowsReturned.Add(float64(len(rows)))
	log.Debug().
		Int("rows", len(rows)).
		Int("chunks", chunks).
		Dur("elapsed", time.Since(start)).
		Msg("Statement executed")

	return rows, nil
}

// fetchChunk dereferences a continuation link. The link is a plain
// retrieval relative to the API root, not a new statement submission.
func (c *Client) fetchChunk(ctx context.Context, link string) (*chunkResponse, error) {
	if idx := strings.Index(link, "/api/2.0/"); idx >= 0 {
		link = link[idx+len("/api/2.0/"):]
	}
	link = strings.TrimPrefix(link, "/")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+link, nil)
	if err != nil {
		return nil, &QueryExecutionError{Err: fmt.Errorf("failed to create chunk request: %w", err)}
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	var chunk chunkResponse
	if err := c.doJSON(req, &chunk); err != nil {
		return nil, &QueryExecutionError{Err: err}
	}
	return &chunk, nil
}

func (c *Client) doJSON(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("warehouse returned status %d: %s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// UploadFile PUTs raw bytes to a path under the storage filesystem
// namespace. Success is signaled by an empty-body 204; anything else is a
// failure.
func (c *Client) UploadFile(ctx context.Context, relativePath string, data []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.FileURL(relativePath), bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create upload request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute upload: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("upload returned status %d: %s", resp.StatusCode, string(body))
	}

	metrics.UploadBytes.Add(float64(len(data)))
	return nil
}
