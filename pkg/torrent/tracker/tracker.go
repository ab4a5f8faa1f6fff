package tracker

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	torrentErrors "github.com/NamanBalaji/btget/internal/errors"
	"github.com/NamanBalaji/btget/pkg/torrent/bencode"
)

// compactPeerLen is the size of one IPv4 peer in a compact peer list.
const compactPeerLen = 6

// maxResponseSize caps how much of a tracker reply is read.
const maxResponseSize = 4 << 20

var (
	// ErrMalformedPeerList indicates a compact peer string whose length is not a multiple of 6.
	ErrMalformedPeerList = errors.New("malformed peer list")
	// ErrTrackerFailure indicates the tracker answered with a failure reason.
	ErrTrackerFailure = errors.New("tracker failure")
	// ErrBadStatus indicates a non-200 HTTP reply.
	ErrBadStatus = errors.New("unexpected tracker status")
)

// Peer is a peer address discovered through a tracker.
type Peer struct {
	IP   net.IP
	Port uint16
	ID   []byte
}

// String returns the peer as host:port.
func (p Peer) String() string {
	return net.JoinHostPort(p.IP.String(), strconv.Itoa(int(p.Port)))
}

// Compact converts peer info into the 6-byte compact format.
func (p Peer) Compact() []byte {
	b := make([]byte, compactPeerLen)
	copy(b, p.IP.To4())
	binary.BigEndian.PutUint16(b[4:], p.Port)

	return b
}

// AnnounceRequest contains announce parameters.
type AnnounceRequest struct {
	InfoHash   [20]byte
	PeerID     [20]byte
	Port       uint16
	Uploaded   int64
	Downloaded int64
	Left       int64
	Event      string
	NumWant    int
}

// Response is a decoded tracker announce reply. Peers holds the raw value
// so both the compact string and the list-of-dicts forms can be parsed.
type Response struct {
	FailureReason  string        `bencode:"failure reason"`
	WarningMessage string        `bencode:"warning message"`
	Complete       int64         `bencode:"complete"`
	Incomplete     int64         `bencode:"incomplete"`
	Interval       int64         `bencode:"interval"`
	MinInterval    int64         `bencode:"min interval"`
	Peers          bencode.Value `bencode:"peers"`
}

// Client announces to a tracker and returns its reply.
type Client interface {
	Announce(ctx context.Context, req *AnnounceRequest) (*Response, error)
}

// HTTPClient implements the HTTP tracker protocol.
type HTTPClient struct {
	announceURL string
	client      *http.Client
}

// NewHTTPClient creates a new HTTP tracker client.
func NewHTTPClient(announceURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		announceURL: announceURL,
		client: &http.Client{
			Timeout: timeout, // Global timeout for the entire request
		},
	}
}

// Announce builds the announce URL for req and requests peers from the tracker.
func (c *HTTPClient) Announce(ctx context.Context, req *AnnounceRequest) (*Response, error) {
	u, err := BuildAnnounceURL(c.announceURL, req)
	if err != nil {
		return nil, torrentErrors.NewParseError(err, c.announceURL)
	}

	return c.RequestPeers(ctx, u)
}

// RequestPeers performs a GET on a fully built announce URL and decodes the
// bencoded reply. No retry is attempted.
func (c *HTTPClient) RequestPeers(ctx context.Context, announceURL string) (*Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, announceURL, nil)
	if err != nil {
		return nil, torrentErrors.NewParseError(err, c.announceURL)
	}

	httpResp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, torrentErrors.FromContext(ctx, err, c.announceURL)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return nil, torrentErrors.NewNetworkError(fmt.Errorf("%w: %s", ErrBadStatus, httpResp.Status), c.announceURL)
	}

	body, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseSize))
	if err != nil {
		return nil, torrentErrors.FromContext(ctx, err, c.announceURL)
	}

	resp, err := ParseResponse(body)
	if err != nil {
		var te *torrentErrors.TorrentError
		if errors.As(err, &te) {
			te.Resource = c.announceURL
		}

		return nil, err
	}

	return resp, nil
}

// BuildAnnounceURL appends the announce query to base. The info-hash is
// percent-encoded byte by byte since it is raw binary, not text; the other
// parameters use standard form encoding.
func BuildAnnounceURL(base string, req *AnnounceRequest) (string, error) {
	if _, err := url.Parse(base); err != nil {
		return "", fmt.Errorf("invalid announce URL: %w", err)
	}

	params := url.Values{}
	params.Set("peer_id", string(req.PeerID[:]))
	params.Set("port", strconv.Itoa(int(req.Port)))
	params.Set("uploaded", strconv.FormatInt(req.Uploaded, 10))
	params.Set("downloaded", strconv.FormatInt(req.Downloaded, 10))
	params.Set("left", strconv.FormatInt(req.Left, 10))
	params.Set("compact", "1")

	if req.Event != "" {
		params.Set("event", req.Event)
	}

	if req.NumWant > 0 {
		params.Set("numwant", strconv.Itoa(req.NumWant))
	}

	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}

	return base + sep + params.Encode() + "&info_hash=" + EscapeBytes(req.InfoHash[:]), nil
}

// EscapeBytes percent-encodes every byte of b as %xx.
func EscapeBytes(b []byte) string {
	var sb strings.Builder
	sb.Grow(len(b) * 3)

	for _, c := range b {
		fmt.Fprintf(&sb, "%%%02x", c)
	}

	return sb.String()
}

// ParseResponse decodes a bencoded tracker reply.
func ParseResponse(data []byte) (*Response, error) {
	val, _, err := bencode.Decode(data)
	if err != nil {
		return nil, torrentErrors.NewParseError(fmt.Errorf("failed to decode tracker response: %w", err), "")
	}

	if val.Kind() != bencode.KindDict {
		return nil, torrentErrors.NewParseError(errors.New("tracker response is not a dictionary"), "")
	}

	resp := &Response{}
	if err := bencode.UnmarshalValue(val, resp); err != nil {
		return nil, torrentErrors.NewParseError(fmt.Errorf("failed to decode tracker response: %w", err), "")
	}

	if resp.FailureReason != "" {
		return nil, torrentErrors.NewProtocolError(fmt.Errorf("%w: %s", ErrTrackerFailure, resp.FailureReason), "")
	}

	return resp, nil
}

// ParsePeers returns the peers carried by resp in the order the tracker
// listed them.
func ParsePeers(resp *Response) ([]Peer, error) {
	switch resp.Peers.Kind() {
	case bencode.KindString:
		b, _ := resp.Peers.AsBytes()
		return ParseCompactPeers(b)
	case bencode.KindList:
		l, _ := resp.Peers.AsList()
		return parseDictPeers(l), nil
	case bencode.KindInvalid:
		return nil, nil
	default:
		return nil, torrentErrors.NewParseError(fmt.Errorf("%w: peers is a %s", ErrMalformedPeerList, resp.Peers.Kind()), "")
	}
}

// ParseCompactPeers parses compact peer format (6 bytes per peer).
func ParseCompactPeers(data []byte) ([]Peer, error) {
	if len(data)%compactPeerLen != 0 {
		return nil, torrentErrors.NewParseError(
			fmt.Errorf("%w: %d bytes is not a multiple of %d", ErrMalformedPeerList, len(data), compactPeerLen), "")
	}

	numPeers := len(data) / compactPeerLen
	peers := make([]Peer, 0, numPeers)

	for i := range numPeers {
		offset := i * compactPeerLen
		ip := make(net.IP, net.IPv4len)
		copy(ip, data[offset:offset+4])

		peers = append(peers, Peer{
			IP:   ip,
			Port: binary.BigEndian.Uint16(data[offset+4 : offset+6]),
		})
	}

	return peers, nil
}

// parseDictPeers parses the non-compact dictionary peer format, skipping
// entries without a usable address.
func parseDictPeers(peerList []bencode.Value) []Peer {
	peers := make([]Peer, 0, len(peerList))

	for _, v := range peerList {
		var entry struct {
			IP   string `bencode:"ip"`
			Port int64  `bencode:"port"`
			ID   []byte `bencode:"peer id"`
		}

		if err := bencode.UnmarshalValue(v, &entry); err != nil {
			continue
		}

		ip := net.ParseIP(entry.IP)
		if ip == nil || entry.Port <= 0 || entry.Port > 65535 {
			continue
		}

		peers = append(peers, Peer{IP: ip, Port: uint16(entry.Port), ID: entry.ID})
	}

	return peers
}
