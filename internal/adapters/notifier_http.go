package adapters

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/avast/retry-go/v4"
	"github.com/rs/zerolog/log"

	"repoforge/internal/ports"
	"repoforge/internal/shared"
	"repoforge/internal/types"
)

// CallbackPayload is the JSON body posted for every lifecycle transition.
type CallbackPayload struct {
	Status        types.RepoStatus `json:"status"`
	ProjectName   string           `json:"project_name"`
	Ref           string           `json:"ref"`
	SHA1          string           `json:"sha1"`
	Distro        string           `json:"distro"`
	DistroVersion string           `json:"distro_version"`
	Flavor        string           `json:"flavor"`
	Type          string           `json:"type"`
	Path          string           `json:"path"`
	Modified      time.Time        `json:"modified"`
	Signed        bool             `json:"signed"`
	Size          int64            `json:"size"`
	NeedsUpdate   bool             `json:"needs_update"`
	IsQueued      bool             `json:"is_queued"`
	IsUpdating    bool             `json:"is_updating"`
	APIURL        string           `json:"api_url"`
	URL           string           `json:"url"`
}

func NewCallbackPayload(status types.RepoStatus, repo types.Repo, hostname string) CallbackPayload {
	host := "https://" + strings.Trim(strings.TrimSpace(hostname), "/")
	uri := repo.URI()
	return CallbackPayload{
		Status:        status,
		ProjectName:   repo.Key.Project,
		Ref:           repo.Key.Ref,
		SHA1:          repo.Key.SHA1,
		Distro:        repo.Key.Distro,
		DistroVersion: repo.Key.DistroVersion,
		Flavor:        repo.Key.Flavor,
		Type:          string(repo.Type),
		Path:          repo.Path,
		Modified:      repo.Modified,
		Signed:        repo.Signed,
		Size:          repo.Size,
		NeedsUpdate:   repo.NeedsUpdate,
		IsQueued:      repo.IsQueued,
		IsUpdating:    repo.IsUpdating,
		APIURL:        shared.JoinURL(host, "repos", uri),
		URL:           shared.JoinURL(host, "r", uri),
	}
}

// HTTPNotifier posts callbacks in the background. Delivery is retried with a
// fixed delay and never reported back to the caller.
type HTTPNotifier struct {
	Callback types.CallbackConfig
	Hostname string
	Client   *http.Client

	wg sync.WaitGroup
}

func NewHTTPNotifier(callback types.CallbackConfig, hostname string) *HTTPNotifier {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if !callback.VerifySSL {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
	}
	timeout := callback.Timeout
	if timeout <= 0 {
		timeout = types.DefaultCallbackTimeout
	}
	return &HTTPNotifier{
		Callback: callback,
		Hostname: hostname,
		Client:   &http.Client{Timeout: timeout, Transport: transport},
	}
}

func (n *HTTPNotifier) Notify(ctx context.Context, status types.RepoStatus, repo types.Repo) {
	if strings.TrimSpace(n.Callback.URL) == "" {
		return
	}
	body, err := json.Marshal(NewCallbackPayload(status, repo, n.Hostname))
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("could not serialize callback payload")
		return
	}
	url := shared.JoinURL(n.Callback.URL, repo.Key.Project)
	log.Ctx(ctx).Debug().Str("url", url).Str("status", string(status)).Str("repo", repo.Key.String()).Msg("sending callback")
	n.dispatch(ctx, url, body)
}

func (n *HTTPNotifier) Ping(ctx context.Context, url string) {
	log.Ctx(ctx).Info().Str("url", url).Msg("posting health ping")
	n.dispatch(ctx, url, []byte("{}"))
}

// Wait blocks until every in-flight delivery finished or gave up.
func (n *HTTPNotifier) Wait() {
	n.wg.Wait()
}

func (n *HTTPNotifier) dispatch(ctx context.Context, url string, body []byte) {
	if strings.TrimSpace(n.Callback.User) == "" || strings.TrimSpace(n.Callback.Key) == "" {
		log.Ctx(ctx).Error().Str("url", url).Msg("callback authentication information missing")
		return
	}
	ctx = context.WithoutCancel(ctx)
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		if err := n.deliver(ctx, url, body); err != nil {
			log.Ctx(ctx).Warn().Err(err).Str("url", url).Msg("callback abandoned after retries")
		}
	}()
}

func (n *HTTPNotifier) deliver(ctx context.Context, url string, body []byte) error {
	attempts := n.Callback.Retries
	if attempts < 1 {
		attempts = 1
	}
	return retry.Do(func() error {
		return n.post(ctx, url, body)
	},
		retry.Context(ctx),
		retry.Attempts(uint(attempts)),
		retry.Delay(n.Callback.RetryDelay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(attempt uint, err error) {
			log.Ctx(ctx).Warn().Err(err).Uint("attempt", attempt+1).Str("url", url).Msg("callback failed")
		}))
}

func (n *HTTPNotifier) post(ctx context.Context, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return retry.Unrecoverable(errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("failed to create callback request").
			WithCause(err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(n.Callback.User, n.Callback.Key)
	resp, err := n.Client.Do(req)
	if err != nil {
		return errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("callback request failed").
			WithCause(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	message, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return errbuilder.New().
		WithCode(errbuilder.CodeInternal).
		WithMsg("callback rejected").
		WithCause(shared.HTTPStatusErrorWithBody(resp.StatusCode, url, string(message)))
}

var _ ports.NotifierPort = (*HTTPNotifier)(nil)
