// client.go contains the authenticated session: the shared http client, its cookie jar
// and the credentials needed to log in again once the portal expires the session.

package dbenergie

import (
	"context"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"rapportage-downloader/internal/components/assert"
	"rapportage-downloader/internal/components/chrono"
	"rapportage-downloader/internal/components/telemetry"
	"rapportage-downloader/internal/htmlutil"
	"sync"
	"time"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/time/rate"
)

const DefaultBaseUrl = "https://www.dbenergie.nl"

const (
	loginPagePath = "/Authorization/Login/Default"
	loginFormPath = "/Home/Login"
)

// Account holds the portal constants that end up in filters and report payloads.
type Account struct {
	MainPortalID int   `json:"main_portal_id"`
	PortalID     int   `json:"portal_id"`
	ProductID    int   `json:"product_id"`
	CustomerIDs  []int `json:"customer_ids"`
}

func DefaultAccount() Account {
	return Account{
		MainPortalID: 1,
		PortalID:     6,
		ProductID:    1,
		CustomerIDs:  []int{50},
	}
}

func (a Account) customerID() int {
	if len(a.CustomerIDs) == 0 {
		return 0
	}
	return a.CustomerIDs[0]
}

type Options struct {
	// BaseUrl defaults to DefaultBaseUrl.
	BaseUrl  string
	Mail     string
	Password string
	// Account defaults to DefaultAccount.
	Account *Account
	// RateLimit is the maximum amount of requests per second, zero disables limiting.
	RateLimit float64
	// CloudflareBypass wraps the transport with browser-like TLS and headers.
	CloudflareBypass bool
	// Timeout defaults to 30 seconds.
	Timeout time.Duration
	// MessageOutput receives a dump of every request/response pair when set.
	MessageOutput telemetry.MessageOutput
	// Clock defaults to chrono.StandardTime.
	Clock     chrono.TimeAPI
	Telemetry telemetry.API
}

// Client is an authenticated portal session. It is safe for concurrent use: requests share
// a read lock while Relogin holds the write lock for as long as it swaps cookies, so no request
// ever runs against a half refreshed session.
type Client struct {
	BaseUrl *url.URL

	http     *resty.Client
	account  Account
	clock    chrono.TimeAPI
	tel      telemetry.API
	mail     string
	password string

	mu sync.RWMutex
	// filterMu serializes PersonalFilter injection with the list request that reads it.
	filterMu sync.Mutex
}

func newCookieJar() (http.CookieJar, error) {
	return cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
}

func newClient(opts Options) (*Client, error) {
	assert.NotNil(opts.Telemetry)
	assert.NotEmptyStr(opts.Mail)
	assert.NotEmptyStr(opts.Password)

	tel := telemetry.NewScopedAPI("dbenergie", opts.Telemetry)

	baseUrl := opts.BaseUrl
	if baseUrl == "" {
		baseUrl = DefaultBaseUrl
	}
	parsedBaseUrl, err := url.Parse(baseUrl)
	if err != nil {
		return nil, err
	}

	timeout := opts.Timeout
	if timeout == 0 {
		timeout = time.Second * 30
	}

	httpClient := resty.New()
	httpClient.SetBaseURL(baseUrl)
	jar, err := newCookieJar()
	if err != nil {
		return nil, err
	}
	httpClient.SetCookieJar(jar)
	if opts.CloudflareBypass {
		httpClient.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(httpClient.GetClient().Transport)
	}

	httpClient.SetHeader("user-agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36")
	httpClient.SetRedirectPolicy(resty.DomainCheckRedirectPolicy(parsedBaseUrl.Hostname()))
	httpClient.SetTimeout(timeout)

	if opts.RateLimit > 0 {
		burst := int(opts.RateLimit)
		if burst < 1 {
			burst = 1
		}
		rateLimiter := rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
		httpClient.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
			return rateLimiter.Wait(req.Context())
		})
	}

	telemetry.InstrumentResty(httpClient, tel, opts.MessageOutput)

	account := DefaultAccount()
	if opts.Account != nil {
		account = *opts.Account
	}
	clock := opts.Clock
	if clock == nil {
		clock = chrono.NewStandardTime()
	}

	return &Client{
		BaseUrl:  parsedBaseUrl,
		http:     httpClient,
		account:  account,
		clock:    clock,
		tel:      tel,
		mail:     opts.Mail,
		password: opts.Password,
	}, nil
}

// Login creates a session and logs in with the given credentials.
//
// The portal answers 200 whether or not the credentials are right, so a wrong password only
// surfaces on the first authenticated request.
func Login(ctx context.Context, opts Options) (*Client, error) {
	c, err := newClient(opts)
	if err != nil {
		return nil, &AuthError{Op: "create client", Err: err}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	err = c.login(ctx)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Relogin logs in again with the stored credentials, replacing every cookie of the session.
// The client handle stays valid.
func (c *Client) Relogin(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	jar, err := newCookieJar()
	if err != nil {
		return &AuthError{Op: "create cookie jar", Err: err}
	}
	c.http.SetCookieJar(jar)

	err = c.login(ctx)
	if err != nil {
		return err
	}
	reloginCounter.Add(ctx, 1)
	return nil
}

// login expects the write lock to be held.
func (c *Client) login(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "client:login")
	defer span.End()

	loginError := func(op string, err error) error {
		span.RecordError(err)
		span.SetStatus(codes.Error, op)
		c.tel.ReportBroken(report_client_login, fmt.Errorf("%s: %w", op, err))
		return &AuthError{Op: op, Err: err}
	}

	token, err := c.verificationToken(ctx)
	if err != nil {
		return loginError("get verification token", err)
	}

	_, err = c.http.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"user[emailAddress]":         c.mail,
			"user[passWord]":             c.password,
			"__RequestVerificationToken": token,
		}).
		Post(loginFormPath)
	if err != nil {
		return loginError("submit login form", err)
	}

	c.tel.ReportDebug(report_client_login, "submitted login form", c.mail)
	return nil
}

func (c *Client) verificationToken(ctx context.Context) (string, error) {
	res, err := c.http.R().
		SetContext(ctx).
		Get(loginPagePath)
	if err != nil {
		return "", fmt.Errorf("fetch login page: %w", err)
	}
	doc, err := htmlutil.Parse(res.Body())
	if err != nil {
		return "", fmt.Errorf("parse login page: %w", err)
	}

	selection := doc.Find(`[name="__RequestVerificationToken"]`).First()
	if selection.Length() == 0 {
		return "", ErrMissingToken
	}
	token, exists := selection.Attr("value")
	if !exists {
		return "", ErrTokenHasNoValue
	}
	return token, nil
}

// Http exposes the underlying client. Requests made through it directly are not
// coordinated with Relogin.
func (c *Client) Http() *resty.Client {
	return c.http
}

// AddCookie stores a raw `name=value` cookie (attributes allowed) for u.
func (c *Client) AddCookie(raw string, u *url.URL) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.addCookie(raw, u)
}

func (c *Client) addCookie(raw string, u *url.URL) error {
	header := http.Header{}
	header.Add("Set-Cookie", raw)
	cookies := (&http.Response{Header: header}).Cookies()
	if len(cookies) == 0 {
		return fmt.Errorf("%w: %q", ErrInvalidCookie, raw)
	}
	c.http.GetClient().Jar.SetCookies(u, cookies)
	return nil
}

// Cookies returns the cookies the session would send to path.
func (c *Client) Cookies(path string) []*http.Cookie {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.http.GetClient().Jar.Cookies(c.resolve(path))
}

func (c *Client) resolve(path string) *url.URL {
	return c.BaseUrl.ResolveReference(&url.URL{Path: path})
}

// get issues an authenticated GET, it expects the read lock to be held.
func (c *Client) get(ctx context.Context, path string, headers map[string]string, query map[string]string) (*resty.Response, error) {
	res, err := c.http.R().
		SetContext(ctx).
		SetHeaders(headers).
		SetQueryParams(query).
		Get(path)
	if err != nil {
		return nil, err
	}
	if res.StatusCode() != http.StatusOK {
		return res, &StatusError{Status: res.StatusCode()}
	}
	return res, nil
}
