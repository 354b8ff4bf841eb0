package aurgate

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/go-json-experiment/json"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"
	"zombiezen.com/go/log"
)

// aurInfoChunk bounds the number of arg[] parameters per RPC request.
const aurInfoChunk = 100

// AURPackage is the subset of AUR RPC info fields aurgate needs.
type AURPackage struct {
	Name         string   `json:"Name"`
	PackageBase  string   `json:"PackageBase"`
	Version      string   `json:"Version"`
	Depends      []string `json:"Depends"`
	MakeDepends  []string `json:"MakeDepends"`
	CheckDepends []string `json:"CheckDepends"`
}

// BuildDepends returns every dependency that has to be present to build and run the package.
func (p AURPackage) BuildDepends() []string {
	deps := make([]string, 0, len(p.Depends)+len(p.MakeDepends)+len(p.CheckDepends))
	deps = append(deps, p.Depends...)
	deps = append(deps, p.MakeDepends...)
	deps = append(deps, p.CheckDepends...)
	return deps
}

type aurResponse struct {
	Type    string       `json:"type"`
	Error   string       `json:"error"`
	Results []AURPackage `json:"results"`
}

type aurLookup struct {
	pkg   AURPackage
	found bool
}

// AURClient talks to the AUR RPC interface. Lookups are memoised for the
// lifetime of the client, so one install run asks about each name once.
type AURClient struct {
	BaseURL string
	HTTP    *http.Client
	cache   *lru.Cache[string, aurLookup]
}

func newHttpClient() *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	return &http.Client{
		Transport: transport,
		Timeout:   60 * time.Second,
	}
}

// NewAURClient creates a client for the RPC endpoint under baseURL.
func NewAURClient(baseURL string) (*AURClient, error) {
	cache, err := lru.New[string, aurLookup](4096)
	if err != nil {
		return nil, err
	}
	return &AURClient{
		BaseURL: baseURL,
		HTTP:    newHttpClient(),
		cache:   cache,
	}, nil
}

// Info returns the metadata of every name the AUR knows. Unknown names are
// simply absent from the result.
func (c *AURClient) Info(ctx context.Context, names []string) (map[string]AURPackage, error) {
	result := make(map[string]AURPackage, len(names))
	var missing []string
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		if seen[name] {
			continue
		}
		seen[name] = true
		if hit, ok := c.cache.Get(name); ok {
			if hit.found {
				result[name] = hit.pkg
			}
			continue
		}
		missing = append(missing, name)
	}
	if len(missing) == 0 {
		return result, nil
	}

	var chunks [][]string
	for start := 0; start < len(missing); start += aurInfoChunk {
		end := min(start+aurInfoChunk, len(missing))
		chunks = append(chunks, missing[start:end])
	}
	answers := make([][]AURPackage, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	for i, chunk := range chunks {
		g.Go(func() error {
			pkgs, err := c.fetchInfo(gctx, chunk)
			if err != nil {
				return err
			}
			answers[i] = pkgs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	found := make(map[string]AURPackage)
	for _, pkgs := range answers {
		for _, p := range pkgs {
			found[p.Name] = p
		}
	}
	for _, name := range missing {
		p, ok := found[name]
		c.cache.Add(name, aurLookup{pkg: p, found: ok})
		if ok {
			result[name] = p
		}
	}
	return result, nil
}

func (c *AURClient) fetchInfo(ctx context.Context, names []string) ([]AURPackage, error) {
	q := url.Values{}
	q.Set("v", "5")
	q.Set("type", "info")
	for _, n := range names {
		q.Add("arg[]", n)
	}
	endpoint := c.BaseURL + "/rpc/?" + q.Encode()
	log.Debugf(ctx, "AUR info request for %d packages", len(names))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "aurgate/"+version)
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("AUR request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("AUR request failed: %s", resp.Status)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read AUR response: %w", err)
	}
	var decoded aurResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("failed to decode AUR response: %w", err)
	}
	if decoded.Type == "error" {
		return nil, fmt.Errorf("AUR error: %s", decoded.Error)
	}
	return decoded.Results, nil
}
