package restyutil

import (
	"net/http"
	"time"

	"skolarena/lib/telemetry"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/go-resty/resty/v2"
)

const browserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36"

// builds a resty client that passes for a browser against portals that
// fingerprint their visitors. all sub-clients share one cookie jar so
// that a saml assertion consumed by one portal is visible to the next.
func NewBrowserClient(jar http.CookieJar, tracerName string) *resty.Client {
	client := resty.New()
	client.SetCookieJar(jar)
	client.SetHeader("user-agent", browserUserAgent)
	client.SetTimeout(time.Second * 30)
	client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)

	telemetry.InstrumentResty(client, tracerName)
	return client
}

// the url the response actually landed on after redirects. the
// handshakes key session staleness off this, so a missing raw request
// falls back to the url that was asked for.
func FinalURL(res *resty.Response) string {
	if res.RawResponse != nil && res.RawResponse.Request != nil {
		return res.RawResponse.Request.URL.String()
	}
	return res.Request.URL
}
