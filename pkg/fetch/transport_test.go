package fetch

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

func TestHTTPTransportStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	tr := NewHTTPTransport(srv.URL+"/", time.Second)
	resp, err := tr.Get(context.Background(), "/missing", PartialHeader())
	if err != nil {
		t.Fatal(err)
	}
	if resp.OK() || resp.Status != http.StatusNotFound {
		t.Errorf("Status = %d", resp.Status)
	}
}

func TestHTTPTransportBodyLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(bytes.Repeat([]byte("x"), 64))
	}))
	defer srv.Close()

	tr := NewHTTPTransport(srv.URL, time.Second)
	tr.MaxBodySize = 16
	if _, err := tr.Get(context.Background(), "/", nil); err == nil {
		t.Error("expected body size error")
	}
}

type fakeS3 struct {
	objects map[string]string
	types   map[string]string
	keys    []string
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	key := aws.ToString(in.Key)
	f.keys = append(f.keys, key)
	body, ok := f.objects[key]
	if !ok {
		return nil, &types.NoSuchKey{Message: aws.String("missing")}
	}
	out := &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader([]byte(body)))}
	if ct, ok := f.types[key]; ok {
		out.ContentType = aws.String(ct)
	}
	return out, nil
}

func TestS3TransportKey(t *testing.T) {
	tr := NewS3Transport(&fakeS3{}, "site", "/public/")
	tests := map[string]string{
		"/":                "public/index.html",
		"/about":           "public/about/index.html",
		"/blog/post?x=1":   "public/blog/post/index.html",
		"/feed.json":       "public/feed.json",
		"/../../etc/x.txt": "public/etc/x.txt",
	}
	for href, want := range tests {
		if got := tr.Key(href); got != want {
			t.Errorf("Key(%q) = %q, want %q", href, got, want)
		}
	}
}

func TestS3TransportGet(t *testing.T) {
	fake := &fakeS3{
		objects: map[string]string{
			"about/index.html": "<main>About</main>",
			"data.json":        `{"html":"x"}`,
		},
		types: map[string]string{"about/index.html": "text/html"},
	}
	tr := NewS3Transport(fake, "site", "")

	resp, err := tr.Get(context.Background(), "/about", nil)
	if err != nil {
		t.Fatal(err)
	}
	if !resp.OK() || resp.ContentType != "text/html" || string(resp.Body) != "<main>About</main>" {
		t.Errorf("resp = %+v", resp)
	}

	resp, err = tr.Get(context.Background(), "/data.json", nil)
	if err != nil {
		t.Fatal(err)
	}
	if resp.ContentType != "application/json" {
		t.Errorf("ContentType = %q, want application/json", resp.ContentType)
	}

	resp, err = tr.Get(context.Background(), "/missing", nil)
	if err != nil {
		t.Fatal(err)
	}
	if resp.Status != http.StatusNotFound {
		t.Errorf("Status = %d, want 404", resp.Status)
	}
}

func TestS3TransportWithFetcher(t *testing.T) {
	fake := &fakeS3{objects: map[string]string{
		"index.html": "<html><head><title>Home</title></head><body><main>Hi</main></body></html>",
	}}
	f := mustFetcher(t, Options{Transport: NewS3Transport(fake, "site", "")})

	p, err := f.Fetch(context.Background(), navFor("/", nil))
	if err != nil {
		t.Fatal(err)
	}
	if p.HTML() != "Hi" || p.Title() != "Home" {
		t.Errorf("payload = %q %q", p.HTML(), p.Title())
	}
}

func TestNewS3Client(t *testing.T) {
	c := NewS3Client(S3ClientOptions{Region: "eu-west-1", Endpoint: "http://localhost:9000", Anonymous: true})
	if c == nil {
		t.Fatal("NewS3Client returned nil")
	}
	opts := c.Options()
	if opts.Region != "eu-west-1" || !opts.UsePathStyle || aws.ToString(opts.BaseEndpoint) != "http://localhost:9000" {
		t.Errorf("options = %+v", opts)
	}
}
