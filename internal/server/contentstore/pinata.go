package contentstore

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/evidencekeeper/internal/logging"
	"github.com/golang-jwt/jwt/v5"
)

const (
	pinFilePath     = "/pinning/pinFileToIPFS"
	metadataProject = "evidence-integrity"
	maxErrorBody    = 4 << 10
)

type pinataMetadata struct {
	Name      string            `json:"name"`
	KeyValues map[string]string `json:"keyvalues"`
}

type pinResponse struct {
	IpfsHash  string `json:"IpfsHash"`
	PinSize   int64  `json:"PinSize"`
	Timestamp string `json:"Timestamp"`
}

// PinataStore pins content through the Pinata pinning API.
type PinataStore struct {
	apiURL string
	jwt    string
	client *http.Client
	logger logging.Logger
	now    func() time.Time
}

func NewPinataStore(apiURL, jwt string, client *http.Client, l logging.Logger) *PinataStore {
	if client == nil {
		client = http.DefaultClient
	}
	return &PinataStore{
		apiURL: strings.TrimRight(apiURL, "/"),
		jwt:    strings.TrimSpace(jwt),
		client: client,
		logger: l.With("module", "pinata"),
		now:    time.Now,
	}
}

// Configured reports whether a credential is present at all.
func (p *PinataStore) Configured() bool {
	return p.jwt != ""
}

// checkCredential rejects missing, malformed and expired credentials
// before any bytes are sent. The signature is verified by Pinata.
func (p *PinataStore) checkCredential() error {
	if p.jwt == "" {
		return fmt.Errorf("%w: pinata credential is not configured", ErrAuth)
	}

	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(p.jwt, claims); err != nil {
		return fmt.Errorf("%w: pinata credential is malformed: %v", ErrAuth, err)
	}
	if claims.ExpiresAt != nil && !claims.ExpiresAt.After(p.now()) {
		return fmt.Errorf("%w: pinata credential expired at %s", ErrAuth, claims.ExpiresAt.UTC().Format(time.RFC3339))
	}
	return nil
}

// Upload streams r as a multipart pin request and returns the CID.
func (p *PinataStore) Upload(ctx context.Context, r io.Reader, name string) (string, error) {
	if err := p.checkCredential(); err != nil {
		return "", err
	}

	pr, pw := io.Pipe()
	defer pr.Close()
	mw := multipart.NewWriter(pw)

	go func() {
		err := writePinForm(mw, r, name, p.now())
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err)
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiURL+pinFilePath, pr)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUpload, err)
	}
	req.Header.Set("Authorization", "Bearer "+p.jwt)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUpload, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		detail := strings.TrimSpace(string(body))
		switch resp.StatusCode {
		case http.StatusUnauthorized:
			return "", fmt.Errorf("%w: pinata rejected the credential: %s", ErrAuth, detail)
		case http.StatusForbidden:
			return "", fmt.Errorf("%w: pinata credential lacks pinning scope: %s", ErrForbidden, detail)
		default:
			return "", fmt.Errorf("%w: pinata returned %d: %s", ErrUpload, resp.StatusCode, detail)
		}
	}

	var out pinResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("%w: decode pin response: %v", ErrUpload, err)
	}
	if out.IpfsHash == "" {
		return "", fmt.Errorf("%w: pin response has no IpfsHash", ErrUpload)
	}

	p.logger.Info(ctx, "content pinned", "cid", out.IpfsHash, "size", out.PinSize, "name", name)
	return out.IpfsHash, nil
}

func writePinForm(mw *multipart.Writer, r io.Reader, name string, now time.Time) error {
	part, err := mw.CreateFormFile("file", name)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, r); err != nil {
		return err
	}

	meta, err := json.Marshal(pinataMetadata{
		Name: name,
		KeyValues: map[string]string{
			"project":   metadataProject,
			"timestamp": strconv.FormatInt(now.UnixMilli(), 10),
		},
	})
	if err != nil {
		return err
	}
	return mw.WriteField("pinataMetadata", string(meta))
}
