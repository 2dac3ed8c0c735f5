package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/go-resty/resty/v2"
	"github.com/h2non/gock"
)

func LoadFixture(t testing.TB, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", name))
	if err != nil {
		t.Fatalf("read fixture %s: %v", name, err)
	}
	return string(data)
}

// routes a sub-client's http traffic through gock for the duration of
// the test. tests declare expected requests with gock.New(...).
func Intercept(t testing.TB, clients ...*resty.Client) {
	t.Helper()
	for _, c := range clients {
		gock.InterceptClient(c.GetClient())
	}
	t.Cleanup(gock.Off)
}
