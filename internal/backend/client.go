package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/auth"
	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/model"
)

// maxErrorBody bounds how much of a failed reply is read for its message.
const maxErrorBody = 64 << 10

// Client talks to the school backend on behalf of one student.
type Client struct {
	baseURL       string
	auth          *auth.Context
	http          *http.Client
	timeout       time.Duration
	uploadTimeout time.Duration
	log           zerolog.Logger
}

// NewClient creates a new Client bound to the student's auth context.
func NewClient(cfg *config.Config, authCtx *auth.Context, log zerolog.Logger) *Client {
	return &Client{
		baseURL:       cfg.BackendURL,
		auth:          authCtx,
		http:          &http.Client{},
		timeout:       cfg.RequestTimeout,
		uploadTimeout: cfg.UploadTimeout,
		log:           log.With().Str("component", "backend_client").Logger(),
	}
}

// FetchExam retrieves the exam descriptor.
func (c *Client) FetchExam(ctx context.Context, examID string) (*model.Exam, error) {
	var exam model.Exam
	if err := c.doJSON(ctx, "fetch exam", http.MethodGet, Path.Exam(examID), nil, nil, &exam); err != nil {
		return nil, err
	}
	return &exam, nil
}

// FetchQuestions retrieves the exam's question set in backend order.
func (c *Client) FetchQuestions(ctx context.Context, examID string) ([]model.Question, error) {
	var set model.QuestionSet
	if err := c.doJSON(ctx, "fetch questions", http.MethodGet, Path.ExamQuestions(examID), nil, nil, &set); err != nil {
		return nil, err
	}
	return set.Questions, nil
}

// ListTodayExams retrieves one page of the student's exams for today.
func (c *Client) ListTodayExams(ctx context.Context, q model.LobbyQuery) (*model.LobbyPage, error) {
	query := url.Values{}
	if q.Search != "" {
		query.Set("search", q.Search)
	}
	if q.Sort != "" {
		query.Set("sort", q.Sort)
	}
	if q.Order != "" {
		query.Set("order", q.Order)
	}
	if q.Page > 0 {
		query.Set("page", strconv.Itoa(q.Page))
	}
	if q.Limit > 0 {
		query.Set("limit", strconv.Itoa(q.Limit))
	}

	var page model.LobbyPage
	if err := c.doJSON(ctx, "list today exams", http.MethodGet, Path.TodayExams(), query, nil, &page); err != nil {
		return nil, err
	}
	if page.Data == nil {
		page.Data = []model.Exam{}
	}
	return &page, nil
}

// StartSession opens a session for the exam and returns its handle.
func (c *Client) StartSession(ctx context.Context, examID string) (model.SessionHandle, error) {
	var resp model.StartSessionResponse
	if err := c.doJSON(ctx, "start session", http.MethodPost, Path.SessionStart(examID), nil, struct{}{}, &resp); err != nil {
		return "", err
	}
	if resp.ID == "" {
		return "", fmt.Errorf("start session: %w: response without id", ErrRejected)
	}
	return resp.ID, nil
}

// ReportViolation records a tab-switch violation for the session.
func (c *Client) ReportViolation(ctx context.Context, handle model.SessionHandle) error {
	return c.doJSON(ctx, "report violation", http.MethodPost, Path.SessionTabSwitch(handle), nil, struct{}{}, nil)
}

// SubmitAnswers sends the exam submission.
func (c *Client) SubmitAnswers(ctx context.Context, examID string, answers []model.AnswerItem) error {
	if answers == nil {
		answers = []model.AnswerItem{}
	}
	body := model.SubmissionRequest{Answers: answers}
	return c.doJSON(ctx, "submit answers", http.MethodPost, Path.Submission(examID), nil, body, nil)
}

// FinishSession marks the session as finished.
func (c *Client) FinishSession(ctx context.Context, handle model.SessionHandle) error {
	return c.doJSON(ctx, "finish session", http.MethodPost, Path.SessionFinish(handle), nil, struct{}{}, nil)
}

// UploadEvidence streams the session recording as multipart field "file".
func (c *Client) UploadEvidence(ctx context.Context, handle model.SessionHandle, ev *model.Evidence) error {
	const op = "upload evidence"

	ctx, cancel := context.WithTimeout(ctx, c.uploadTimeout)
	defer cancel()

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	// Stream the form so a long recording is never buffered twice.
	go func() {
		pw.CloseWithError(writeEvidenceForm(mw, ev))
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+Path.SessionVideo(handle), pr)
	if err != nil {
		pr.Close()
		return fmt.Errorf("%s: build request: %w", op, err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	return c.send(op, req, nil)
}

func writeEvidenceForm(mw *multipart.Writer, ev *model.Evidence) error {
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, ev.Filename))
	h.Set("Content-Type", ev.MIMEType)

	part, err := mw.CreatePart(h)
	if err != nil {
		return err
	}
	if _, err := part.Write(ev.Data); err != nil {
		return err
	}
	if ev.Digest != "" {
		if err := mw.WriteField("digest", ev.Digest); err != nil {
			return err
		}
	}
	return mw.Close()
}

// doJSON runs a JSON request under the per-request timeout.
func (c *Client) doJSON(ctx context.Context, op, method, path string, query url.Values, body, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: encode body: %w", op, err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", op, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.send(op, req, out)
}

func (c *Client) send(op string, req *http.Request, out any) error {
	reqID := uuid.New().String()
	req.Header.Set("Authorization", "Bearer "+c.auth.Token())
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", reqID)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(req.Context().Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%s: %w", op, ErrTimeout)
		}
		if req.Context().Err() != nil {
			return fmt.Errorf("%s: %w", op, req.Context().Err())
		}
		return fmt.Errorf("%s: %w: %v", op, ErrUnavailable, err)
	}
	defer resp.Body.Close()

	c.log.Debug().
		Str("op", op).
		Str("request_id", reqID).
		Int("status", resp.StatusCode).
		Dur("took", time.Since(start)).
		Msg("Backend call")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return decodeAPIError(op, resp.StatusCode, raw)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}
