// Package integration handles external service interactions
package integration

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"syscall"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/abelzeko/water-monitor/internal/entities"
	"github.com/abelzeko/water-monitor/internal/log"
)

// CitationResolver fills in missing citation titles from the linked pages
type CitationResolver struct {
	client *http.Client
}

// ErrBlockedAddress is returned for citation links that point at loopback,
// private or otherwise internal addresses
var ErrBlockedAddress = errors.New("address not allowed")

// NewCitationResolver creates a resolver. A nil client gets a 10 second timeout
// and refuses to connect to internal addresses.
func NewCitationResolver(client *http.Client) *CitationResolver {
	if client == nil {
		client = publicClient()
	}
	return &CitationResolver{client: client}
}

func publicClient() *http.Client {
	dialer := &net.Dialer{
		Timeout: 5 * time.Second,
		Control: func(_, address string, _ syscall.RawConn) error {
			host, _, err := net.SplitHostPort(address)
			if err != nil {
				return err
			}
			if ip := net.ParseIP(host); ip == nil || !isPublicIP(ip) {
				return fmt.Errorf("%w: %s", ErrBlockedAddress, host)
			}
			return nil
		},
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = nil
	transport.DialContext = dialer.DialContext
	return &http.Client{Timeout: 10 * time.Second, Transport: transport}
}

func isPublicIP(ip net.IP) bool {
	return !(ip.IsLoopback() || ip.IsPrivate() || ip.IsUnspecified() ||
		ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() ||
		ip.IsInterfaceLocalMulticast() || ip.IsMulticast())
}

// Resolve returns the citations with every empty title replaced by the page
// title, or by the URL itself when the page cannot be read.
func (cr *CitationResolver) Resolve(ctx context.Context, citations []entities.Citation) []entities.Citation {
	resolved := make([]entities.Citation, len(citations))
	for i, c := range citations {
		resolved[i] = c
		if strings.TrimSpace(c.Title) != "" {
			continue
		}
		title, err := cr.FetchTitle(ctx, c.URL)
		if err != nil {
			log.Warnf("Could not resolve citation title for %s: %v", c.URL, err)
			resolved[i].Title = c.URL
			continue
		}
		resolved[i].Title = title
	}
	return resolved
}

// FetchTitle downloads a page and extracts its title. Only http and https links are followed.
func (cr *CitationResolver) FetchTitle(ctx context.Context, link string) (string, error) {
	u, err := url.Parse(link)
	if err != nil {
		return "", fmt.Errorf("invalid url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported url scheme %q", u.Scheme)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}

	res, err := cr.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch the webpage: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status code: %d %s", res.StatusCode, res.Status)
	}

	doc, err := goquery.NewDocumentFromReader(res.Body)
	if err != nil {
		return "", fmt.Errorf("failed to parse the webpage: %w", err)
	}

	return ExtractTitle(doc)
}

// ExtractTitle returns the page title, trying <title> first and then the first heading
func ExtractTitle(doc *goquery.Document) (string, error) {
	selectors := []string{
		"head title",
		"meta[property='og:title']",
		"h1",
	}

	for _, selector := range selectors {
		sel := doc.Find(selector).First()
		text := strings.TrimSpace(sel.Text())
		if content, ok := sel.Attr("content"); ok {
			text = strings.TrimSpace(content)
		}
		if text != "" {
			return strings.Join(strings.Fields(text), " "), nil
		}
	}
	return "", fmt.Errorf("page has no title")
}
