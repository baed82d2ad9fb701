package dbenergie

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/http/httptest"
	"rapportage-downloader/internal/components/chrono"
	"rapportage-downloader/internal/components/telemetry"
	"sync"
	"testing"
	"time"
)

// fakePortal imitates the parts of the portal the client talks to.
type fakePortal struct {
	mu sync.Mutex

	// loginPage is served at the login page, it defaults to a form with a token.
	loginPage string
	logins    int
	session   string
	form      map[string]string

	listPage     string
	listFilter   string
	listHeader   string
	editPages    map[ConnectionID]string
	latest       map[string]string
	latestStatus int
	payloads     map[string]string
	files        map[string][]byte
}

const loginPageWithToken = `<html><body><form>
	<input type="hidden" name="__RequestVerificationToken" value="token-123">
</form></body></html>`

func newFakePortal() *fakePortal {
	return &fakePortal{
		loginPage: loginPageWithToken,
		editPages: map[ConnectionID]string{},
		latest:    map[string]string{},
		payloads:  map[string]string{},
		files:     map[string][]byte{},
	}
}

func (p *fakePortal) authenticated(r *http.Request) bool {
	cookie, err := r.Cookie("session")
	return err == nil && cookie.Value == p.session
}

func (p *fakePortal) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch r.URL.Path {
	case loginPagePath:
		fmt.Fprint(w, p.loginPage)
		return
	case loginFormPath:
		err := r.ParseForm()
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		p.form = map[string]string{}
		for key := range r.PostForm {
			p.form[key] = r.PostForm.Get(key)
		}
		p.logins++
		p.session = fmt.Sprintf("s%d", p.logins)
		http.SetCookie(w, &http.Cookie{Name: "session", Value: p.session, Path: "/"})
		return
	}

	if !p.authenticated(r) {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	switch r.URL.Path {
	case listPath:
		cookie, err := r.Cookie("PersonalFilter")
		if err == nil {
			p.listFilter = cookie.Value
		}
		p.listHeader = r.Header.Get("request")
		fmt.Fprint(w, p.listPage)
		return
	case downloadPath:
		data, ok := p.files[r.URL.Query().Get("fileName")]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write(data)
		return
	}

	var id ConnectionID
	_, err := fmt.Sscanf(r.URL.Path, editPath+"/%d", &id)
	if err == nil {
		page, ok := p.editPages[id]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		fmt.Fprint(w, page)
		return
	}

	body, ok := p.latest[r.URL.Path]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	payload, err := base64.StdEncoding.DecodeString(r.Header.Get("request"))
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	p.payloads[r.URL.Path] = string(payload)
	if p.latestStatus != 0 {
		w.WriteHeader(p.latestStatus)
	}
	fmt.Fprint(w, body)
}

func listRow(id ConnectionID, ean EAN) string {
	return fmt.Sprintf(
		`<a class="list-row-visible" href="/Connections/Edit/Index/%d">
			<div class="row-cell width-140"> %s </div>
			<div class="row-cell width-200">Somewhere</div>
		</a>`,
		id, ean,
	)
}

func listPage(rows ...string) string {
	page := `<html><body><div class="list">`
	for _, row := range rows {
		page += row
	}
	return page + `</div></body></html>`
}

func editPage(ean EAN, dataRange string) string {
	return fmt.Sprintf(
		`<html><body>
			<input id="Mod_ean" value=" %s ">
			<input id="statusDataOdaRequest" value="%s">
		</body></html>`,
		ean, dataRange,
	)
}

var fixedNow = time.Date(2024, time.March, 15, 10, 30, 0, 0, chrono.Amsterdam())

type testSession struct {
	portal *fakePortal
	client *Client
	tel    *telemetry.TestAPI
}

func startPortal(t *testing.T, portal *fakePortal) (*httptest.Server, *telemetry.TestAPI, Options) {
	t.Helper()
	srv := httptest.NewServer(portal)
	t.Cleanup(srv.Close)

	tel := telemetry.NewTestAPI()
	return srv, tel, Options{
		BaseUrl:   srv.URL,
		Mail:      "energie@example.nl",
		Password:  "hunter2",
		Clock:     chrono.NewFakeTime(fixedNow),
		Telemetry: tel,
	}
}

func newTestSession(t *testing.T) testSession {
	t.Helper()
	portal := newFakePortal()
	_, tel, opts := startPortal(t, portal)

	client, err := Login(context.Background(), opts)
	if err != nil {
		t.Fatal(err)
	}
	return testSession{portal: portal, client: client, tel: tel}
}
