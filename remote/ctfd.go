package remote

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/go-logr/logr"
	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
)

func init() {
	Register(BackendDef{
		ID:   "ctfd_token",
		Name: "CTFd (Token)",
		Settings: []SettingDef{
			{ID: "url", Name: "Instance URL", Required: true},
			{ID: "access_token", Name: "Access Token", Required: true},
			{ID: "cookie", Name: "Extra Cookies"},
			{ID: "ssl_verify", Name: "Verify TLS certificates"},
		},
		Build: func(s map[string]string, log logr.Logger) (Client, error) {
			auth := tokenAuth(s["access_token"])
			if s["cookie"] != "" {
				auth = chain(auth, cookieAuth(s["cookie"]))
			}
			return newCTFd(s["url"], auth, sslVerify(s), log)
		},
	})

	Register(BackendDef{
		ID:   "ctfd_cookie",
		Name: "CTFd (Cookie)",
		Settings: []SettingDef{
			{ID: "url", Name: "Instance URL", Required: true},
			{ID: "cookie", Name: "Session Cookie", Required: true},
			{ID: "ssl_verify", Name: "Verify TLS certificates"},
		},
		Build: func(s map[string]string, log logr.Logger) (Client, error) {
			return newCTFd(s["url"], cookieAuth(s["cookie"]), sslVerify(s), log)
		},
	})
}

const requestTimeout = 30 * time.Second

type ctfdClient struct {
	http *resty.Client
	log  logr.Logger
}

func tokenAuth(token string) func(*resty.Client) {
	return func(c *resty.Client) {
		c.SetHeader("Authorization", "Token "+token)
	}
}

func cookieAuth(cookie string) func(*resty.Client) {
	return func(c *resty.Client) {
		c.SetHeader("Cookie", cookie)
	}
}

func chain(auths ...func(*resty.Client)) func(*resty.Client) {
	return func(c *resty.Client) {
		for _, a := range auths {
			a(c)
		}
	}
}

func sslVerify(s map[string]string) bool {
	v, ok := s["ssl_verify"]
	if !ok || v == "" {
		return true
	}
	verify, err := strconv.ParseBool(v)
	if err != nil {
		return true
	}
	return verify
}

// NewCTFd returns a token-authenticated client for the instance at baseURL.
func NewCTFd(baseURL, token string, log logr.Logger) (Client, error) {
	return newCTFd(baseURL, tokenAuth(token), true, log)
}

func newCTFd(baseURL string, auth func(*resty.Client), verify bool, log logr.Logger) (*ctfdClient, error) {
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, errors.Wrapf(err, "invalid instance url %q", baseURL)
	}

	h := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(requestTimeout).
		SetHeader("Accept", "application/json")
	auth(h)
	if !verify {
		h.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true})
	}
	return &ctfdClient{http: h, log: log}, nil
}

func (c *ctfdClient) Get(ctx context.Context, path string) (json.RawMessage, error) {
	return c.do(ctx, http.MethodGet, path, nil)
}

func (c *ctfdClient) Post(ctx context.Context, path string, body any) (json.RawMessage, error) {
	return c.do(ctx, http.MethodPost, path, body)
}

func (c *ctfdClient) Patch(ctx context.Context, path string, body any) (json.RawMessage, error) {
	return c.do(ctx, http.MethodPatch, path, body)
}

func (c *ctfdClient) Delete(ctx context.Context, path string) error {
	_, err := c.do(ctx, http.MethodDelete, path, nil)
	return err
}

func (c *ctfdClient) Upload(ctx context.Context, path string, fields map[string]string, files []File) (json.RawMessage, error) {
	req := c.http.R().
		SetContext(ctx).
		SetMultipartFormData(fields)
	for _, f := range files {
		req.SetFileReader("file", f.Name, f.Reader)
	}

	resp, err := req.Post(path)
	if err != nil {
		return nil, errors.Wrapf(err, "POST %s", path)
	}
	return c.decode(http.MethodPost, path, resp)
}

func (c *ctfdClient) Download(ctx context.Context, fileURL string) ([]byte, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Accept", "*/*").
		Get(fileURL)
	if err != nil {
		return nil, errors.Wrapf(err, "download %s", filenameFromURL(fileURL))
	}
	c.log.V(4).Info("download", "url", fileURL, "status", resp.StatusCode(), "bytes", len(resp.Body()))
	if !ok(resp) {
		return nil, &StatusError{Method: http.MethodGet, Path: fileURL, StatusCode: resp.StatusCode(), Body: string(resp.Body())}
	}
	return resp.Body(), nil
}

func (c *ctfdClient) do(ctx context.Context, method, path string, body any) (json.RawMessage, error) {
	req := c.http.R().SetContext(ctx)
	if body != nil {
		req.SetHeader("Content-Type", "application/json").SetBody(body)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		return nil, errors.Wrapf(err, "%s %s", method, path)
	}
	return c.decode(method, path, resp)
}

func (c *ctfdClient) decode(method, path string, resp *resty.Response) (json.RawMessage, error) {
	c.log.V(4).Info("request", "method", method, "path", path, "status", resp.StatusCode(), "duration", resp.Time())
	if !ok(resp) {
		return nil, &StatusError{Method: method, Path: path, StatusCode: resp.StatusCode(), Body: string(resp.Body())}
	}

	body := bytes.TrimSpace(resp.Body())
	if len(body) == 0 {
		return nil, nil
	}
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, errors.Wrapf(err, "decode %s %s", method, path)
	}
	if env.Success != nil && !*env.Success {
		return nil, &StatusError{Method: method, Path: path, StatusCode: resp.StatusCode(), Body: string(body)}
	}
	return env.Data, nil
}

func ok(resp *resty.Response) bool {
	return resp.StatusCode() >= 200 && resp.StatusCode() < 300
}

// filenameFromURL strips the directory and query (e.g. ?token=) from a file
// reference.
func filenameFromURL(raw string) string {
	parsed, err := url.Parse(raw)
	if err == nil && parsed.Path != "" {
		name := path.Base(parsed.Path)
		if name != "" && name != "/" && name != "." {
			return name
		}
	}
	name := path.Base(strings.SplitN(raw, "?", 2)[0])
	if name == "" || name == "/" || name == "." {
		return ""
	}
	return name
}

// Filename returns the base file name of a remote file reference.
func Filename(ref string) string { return filenameFromURL(ref) }
