package index

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gin-contrib/multitemplate"
	"github.com/gin-gonic/gin"
	"github.com/webtor-io/download-console/handlers/session"
	"github.com/webtor-io/download-console/handlers/thumbnail"
	"github.com/webtor-io/download-console/services/console"
	"github.com/webtor-io/download-console/services/media"
	"github.com/webtor-io/download-console/services/template"
	"github.com/webtor-io/download-console/services/web"
)

const testPayload = "fake mp4 payload"

// --- Mock implementations ---

// backend imitates the media service.
type backend struct {
	mux        sync.Mutex
	infoStatus int
	info       string
	dlStatus   int
	dlHook     func(w http.ResponseWriter)
	infoURLs   []string
	dlParams   []url.Values
}

func newBackendState() *backend {
	return &backend{
		infoStatus: http.StatusOK,
		info:       `{"title":"Test Video","thumbnail_url":"http://img.example.com/t.jpg","resolutions":["720p","1080p"]}`,
		dlStatus:   http.StatusOK,
	}
}

func (b *backend) set(fn func(b *backend)) {
	b.mux.Lock()
	defer b.mux.Unlock()
	fn(b)
}

func (b *backend) calls() ([]string, []url.Values) {
	b.mux.Lock()
	defer b.mux.Unlock()
	return append([]string(nil), b.infoURLs...), append([]url.Values(nil), b.dlParams...)
}

func (b *backend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.mux.Lock()
	switch r.URL.Path {
	case "/video_info/":
		b.infoURLs = append(b.infoURLs, r.URL.Query().Get("url"))
		status, info := b.infoStatus, b.info
		b.mux.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, info)
	case "/download/":
		b.dlParams = append(b.dlParams, r.URL.Query())
		status, hook := b.dlStatus, b.dlHook
		b.mux.Unlock()
		if hook != nil {
			hook(w)
			return
		}
		if status != http.StatusOK {
			w.WriteHeader(status)
			_, _ = io.WriteString(w, `{"detail":"boom"}`)
			return
		}
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = io.WriteString(w, testPayload)
	default:
		b.mux.Unlock()
		http.NotFound(w, r)
	}
}

type env struct {
	srv *httptest.Server
	cl  *http.Client
	be  *backend
}

func setup(t *testing.T) *env {
	t.Helper()
	gin.SetMode(gin.TestMode)

	be := newBackendState()
	bsrv := httptest.NewServer(be)
	t.Cleanup(bsrv.Close)

	cs := console.New(media.NewApi(bsrv.URL, bsrv.Client()), console.NewMemoryStore(time.Hour))

	re := multitemplate.NewRenderer()
	tm := template.NewManager[*web.Context](re).
		WithDir("../../templates").
		WithHelper(web.NewHelperWithAppName("YouTube Video Downloader")).
		WithHelper(thumbnail.NewHelperWithProxy(false))

	r := gin.New()
	r.HTMLRender = re
	session.Register(r, &session.Options{
		Secret: "test-secret",
		Name:   "test-session",
		CSRF:   true,
	})
	RegisterHandler(r, tm, cs, nil)
	if err := tm.Init(); err != nil {
		t.Fatalf("failed to init templates: %v", err)
	}

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatal(err)
	}
	return &env{
		srv: srv,
		cl:  &http.Client{Jar: jar},
		be:  be,
	}
}

func (e *env) page(t *testing.T) *goquery.Document {
	t.Helper()
	resp, err := e.cl.Get(e.srv.URL + "/")
	if err != nil {
		t.Fatal(err)
	}
	return parse(t, resp)
}

func parse(t *testing.T, resp *http.Response) *goquery.Document {
	t.Helper()
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.StatusCode)
	}
	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return doc
}

func csrfToken(t *testing.T, doc *goquery.Document) string {
	t.Helper()
	token, ok := doc.Find(`input[name="_csrf"]`).Attr("value")
	if !ok || token == "" {
		t.Fatal("expected csrf token in form")
	}
	return token
}

// post submits the console form the way a browser would after loading "/".
func (e *env) post(t *testing.T, path string, v url.Values) *http.Response {
	t.Helper()
	v.Set("_csrf", csrfToken(t, e.page(t)))
	resp, err := e.cl.PostForm(e.srv.URL+path, v)
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func (e *env) state(t *testing.T) *StateResponse {
	t.Helper()
	resp, err := e.cl.Get(e.srv.URL + "/api/state")
	if err != nil {
		t.Fatal(err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	var sr StateResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		t.Fatal(err)
	}
	return &sr
}

func notices(doc *goquery.Document) []string {
	var res []string
	doc.Find("#notices .notice").Each(func(_ int, s *goquery.Selection) {
		res = append(res, s.Text())
	})
	return res
}

func options(doc *goquery.Document) []string {
	var res []string
	doc.Find("#resolution option").Each(func(_ int, s *goquery.Selection) {
		res = append(res, s.AttrOr("value", "?")+"="+s.Text())
	})
	return res
}

func TestIndex_Idle(t *testing.T) {
	e := setup(t)
	doc := e.page(t)

	if got := doc.Find("title").Text(); got != "YouTube Video Downloader" {
		t.Errorf("unexpected title %q", got)
	}
	if doc.Find("#info").Length() != 0 {
		t.Error("expected no info section before a fetch")
	}
	if doc.Find("#fetch").Length() != 1 {
		t.Error("expected fetch trigger")
	}
	if p := doc.Find("#console-form").AttrOr("data-phase", ""); p != string(console.PhaseIdle) {
		t.Errorf("expected idle phase, got %q", p)
	}
}

func TestScenarioA_FetchShowsInfo(t *testing.T) {
	e := setup(t)
	doc := parse(t, e.post(t, "/info", url.Values{"url": {"https://youtu.be/x"}}))

	if got := doc.Find("#title").Text(); got != "Test Video" {
		t.Errorf("expected title %q, got %q", "Test Video", got)
	}
	if got := doc.Find("#thumbnail").AttrOr("src", ""); got != "http://img.example.com/t.jpg" {
		t.Errorf("unexpected thumbnail %q", got)
	}
	want := []string{"=Select", "720p=720p", "1080p=1080p"}
	if got := options(doc); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("expected options %v, got %v", want, got)
	}
	btn := doc.Find("#download")
	if btn.Text() != console.DownloadLabel {
		t.Errorf("expected %q, got %q", console.DownloadLabel, btn.Text())
	}
	if _, disabled := btn.Attr("disabled"); disabled {
		t.Error("expected download trigger enabled")
	}
	if got := doc.Find("#url").AttrOr("value", ""); got != "https://youtu.be/x" {
		t.Errorf("expected url input to keep query, got %q", got)
	}
	if infoURLs, _ := e.be.calls(); len(infoURLs) != 1 || infoURLs[0] != "https://youtu.be/x" {
		t.Errorf("unexpected backend calls %v", infoURLs)
	}
}

func TestScenarioB_FetchServerError(t *testing.T) {
	e := setup(t)
	e.be.set(func(b *backend) {
		b.infoStatus = http.StatusInternalServerError
		b.info = `{"detail":"boom"}`
	})

	doc := parse(t, e.post(t, "/info", url.Values{"url": {"https://youtu.be/x"}}))

	if got := notices(doc); len(got) != 1 || got[0] != console.FetchFailedNotice {
		t.Errorf("expected %q notice, got %v", console.FetchFailedNotice, got)
	}
	if doc.Find("#info").Length() != 0 {
		t.Error("expected no info after failed fetch")
	}
	if got := notices(e.page(t)); len(got) != 0 {
		t.Errorf("expected notices to be shown once, got %v", got)
	}
}

func TestNotices_OpenedAsModal(t *testing.T) {
	e := setup(t)
	e.be.set(func(b *backend) {
		b.infoStatus = http.StatusInternalServerError
	})
	doc := parse(t, e.post(t, "/info", url.Values{"url": {"https://youtu.be/x"}}))

	dlg := doc.Find("dialog#notices")
	if dlg.Length() != 1 {
		t.Fatal("expected notices dialog")
	}
	if _, open := dlg.Attr("open"); open {
		t.Error("expected dialog to be opened by showModal, not the open attribute")
	}
	if !strings.Contains(dlg.Next().Text(), "showModal()") {
		t.Error("expected dialog to be opened modally")
	}
}

func TestFetch_FailureKeepsPreviousInfo(t *testing.T) {
	e := setup(t)
	_ = parse(t, e.post(t, "/info", url.Values{"url": {"https://youtu.be/x"}}))

	e.be.set(func(b *backend) {
		b.infoStatus = http.StatusBadRequest
		b.info = `{"detail":"bad url"}`
	})
	doc := parse(t, e.post(t, "/info", url.Values{"url": {"not a url"}, "resolution": {"720p"}}))

	if got := notices(doc); len(got) != 1 || got[0] != console.FetchFailedNotice {
		t.Errorf("expected %q notice, got %v", console.FetchFailedNotice, got)
	}
	if got := doc.Find("#title").Text(); got != "Test Video" {
		t.Errorf("expected previous info to stay, got %q", got)
	}
	if got := doc.Find("#resolution option[selected]").AttrOr("value", "?"); got != "720p" {
		t.Errorf("expected selection to survive, got %q", got)
	}
}

func TestScenarioC_DownloadStreamsAttachment(t *testing.T) {
	e := setup(t)
	_ = parse(t, e.post(t, "/info", url.Values{"url": {"https://youtu.be/x"}}))

	resp := e.post(t, "/download", url.Values{"url": {"https://youtu.be/x"}, "resolution": {"720p"}})
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != console.FileContentType {
		t.Errorf("expected %q, got %q", console.FileContentType, ct)
	}
	if cd := resp.Header.Get("Content-Disposition"); cd != `attachment; filename="Test Video.mp4"` {
		t.Errorf("unexpected disposition %q", cd)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	if string(body) != testPayload {
		t.Errorf("expected payload %q, got %q", testPayload, body)
	}
	if _, dlParams := e.be.calls(); len(dlParams) != 1 || dlParams[0].Get("resolution") != "720p" || dlParams[0].Get("url") != "https://youtu.be/x" {
		t.Errorf("unexpected backend params %v", dlParams)
	}

	st := e.state(t)
	if st.InProgress || st.DownloadDisabled || st.DownloadLabel != console.DownloadLabel {
		t.Errorf("expected download flag cleared, got %+v", st)
	}
	if len(st.Notices) != 0 {
		t.Errorf("expected no notices, got %v", st.Notices)
	}
}

func TestScenarioD_DownloadFails(t *testing.T) {
	e := setup(t)
	_ = parse(t, e.post(t, "/info", url.Values{"url": {"https://youtu.be/x"}}))
	e.be.set(func(b *backend) {
		b.dlStatus = http.StatusInternalServerError
	})

	doc := parse(t, e.post(t, "/download", url.Values{"url": {"https://youtu.be/x"}, "resolution": {"720p"}}))

	if got := notices(doc); len(got) != 1 || got[0] != console.DownloadFailedNotice {
		t.Errorf("expected %q notice, got %v", console.DownloadFailedNotice, got)
	}
	btn := doc.Find("#download")
	if _, disabled := btn.Attr("disabled"); disabled {
		t.Error("expected download trigger enabled after failure")
	}
	if btn.Text() != console.DownloadLabel {
		t.Errorf("expected %q, got %q", console.DownloadLabel, btn.Text())
	}
}

func TestDownload_TruncatedStreamNotifies(t *testing.T) {
	e := setup(t)
	_ = parse(t, e.post(t, "/info", url.Values{"url": {"https://youtu.be/x"}}))
	e.be.set(func(b *backend) {
		b.dlHook = func(w http.ResponseWriter) {
			w.Header().Set("Content-Length", "1048576")
			_, _ = io.WriteString(w, "partial")
			if f, ok := w.(http.Flusher); ok {
				f.Flush()
			}
			panic(http.ErrAbortHandler)
		}
	})

	resp := e.post(t, "/download", url.Values{"url": {"https://youtu.be/x"}, "resolution": {"720p"}})
	_, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if err == nil {
		t.Error("expected browser to see a truncated body")
	}

	st := e.state(t)
	if st.InProgress {
		t.Error("expected download flag cleared")
	}
	if len(st.Notices) != 1 || st.Notices[0] != console.DownloadFailedNotice {
		t.Errorf("expected %q notice, got %v", console.DownloadFailedNotice, st.Notices)
	}
}

func TestDownload_WithoutInfo(t *testing.T) {
	e := setup(t)
	doc := parse(t, e.post(t, "/download", url.Values{"url": {"https://youtu.be/x"}, "resolution": {"720p"}}))

	if got := notices(doc); len(got) != 1 || got[0] != console.NoMediaInfoNotice {
		t.Errorf("expected %q notice, got %v", console.NoMediaInfoNotice, got)
	}
	if _, dlParams := e.be.calls(); len(dlParams) != 0 {
		t.Errorf("expected no backend download, got %v", dlParams)
	}
}

func TestDownload_InProgressRendering(t *testing.T) {
	e := setup(t)
	_ = parse(t, e.post(t, "/info", url.Values{"url": {"https://youtu.be/x"}}))

	started := make(chan struct{})
	release := make(chan struct{})
	e.be.set(func(b *backend) {
		b.dlHook = func(w http.ResponseWriter) {
			close(started)
			<-release
			_, _ = io.WriteString(w, testPayload)
		}
	})

	v := url.Values{"url": {"https://youtu.be/x"}, "resolution": {"1080p"}}
	v.Set("_csrf", csrfToken(t, e.page(t)))
	done := make(chan error, 1)
	go func() {
		resp, err := e.cl.PostForm(e.srv.URL+"/download", v)
		if err == nil {
			_, err = io.ReadAll(resp.Body)
			_ = resp.Body.Close()
		}
		done <- err
	}()

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("download did not reach the backend")
	}

	doc := e.page(t)
	btn := doc.Find("#download")
	if _, disabled := btn.Attr("disabled"); !disabled {
		t.Error("expected download trigger disabled while downloading")
	}
	if btn.Text() != console.DownloadingLabel {
		t.Errorf("expected %q, got %q", console.DownloadingLabel, btn.Text())
	}
	if st := e.state(t); !st.InProgress || st.Phase != console.PhaseDownloading {
		t.Errorf("expected downloading state, got %+v", st)
	}
	// A reloaded page resumes polling on its own.
	if p := doc.Find("#console-form").AttrOr("data-phase", ""); p != string(console.PhaseDownloading) {
		t.Errorf("expected downloading phase, got %q", p)
	}
	if !strings.Contains(doc.Find("script").Text(), "form.dataset.phase === 'downloading'") {
		t.Error("expected page to poll when loaded mid-download")
	}

	// A second download is refused while the first one streams.
	doc = parse(t, e.post(t, "/download", url.Values{"url": {"https://youtu.be/x"}, "resolution": {"720p"}}))
	if got := notices(doc); len(got) != 1 || got[0] != console.DownloadInProgressNotice {
		t.Errorf("expected %q notice, got %v", console.DownloadInProgressNotice, got)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("expected download to finish, got %v", err)
	}
	if st := e.state(t); st.InProgress {
		t.Error("expected download flag cleared")
	}
}

func TestCSRF_Rejected(t *testing.T) {
	e := setup(t)
	_ = e.page(t)
	resp, err := e.cl.PostForm(e.srv.URL+"/info", url.Values{"url": {"https://youtu.be/x"}})
	if err != nil {
		t.Fatal(err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", resp.StatusCode)
	}
	if infoURLs, _ := e.be.calls(); len(infoURLs) != 0 {
		t.Error("expected no backend call")
	}
}

func TestSession_SeparateConsoles(t *testing.T) {
	e := setup(t)
	_ = parse(t, e.post(t, "/info", url.Values{"url": {"https://youtu.be/x"}}))

	jar, _ := cookiejar.New(nil)
	other := &env{srv: e.srv, cl: &http.Client{Jar: jar}, be: e.be}
	if other.page(t).Find("#info").Length() != 0 {
		t.Error("expected a new browser session to start idle")
	}
	if e.page(t).Find("#info").Length() != 1 {
		t.Error("expected original session to keep its info")
	}
}
