package artifacts

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/xuri/excelize/v2"
)

func newLocal(t *testing.T) *LocalStore {
	t.Helper()
	s, err := NewLocalStore(filepath.Join(t.TempDir(), "digital-products"), "https://shop.example/", "digital-products/")
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}
	return s
}

func TestLocalStore_PutAndURL(t *testing.T) {
	s := newLocal(t)
	ctx := context.Background()

	ref, err := s.Put(ctx, "1-order-1001.txt", "text/plain", []byte("hello"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if ref != "1-order-1001.txt" {
		t.Fatalf("ref = %q", ref)
	}
	b, err := os.ReadFile(filepath.Join(s.Dir, ref))
	if err != nil || string(b) != "hello" {
		t.Fatalf("file content = %q err=%v", b, err)
	}
	u, err := s.URL(ctx, ref)
	if err != nil {
		t.Fatalf("URL: %v", err)
	}
	if u != "https://shop.example/digital-products/1-order-1001.txt" {
		t.Fatalf("url = %q", u)
	}

	// No temp files left behind.
	entries, _ := os.ReadDir(s.Dir)
	if len(entries) != 1 {
		t.Fatalf("expected exactly one file in store dir, got %d", len(entries))
	}
}

func TestLocalStore_RejectsTraversal(t *testing.T) {
	s := newLocal(t)
	ctx := context.Background()
	for _, ref := range []string{"", "..", "../x", "a/b", `a\b`, ".hidden"} {
		if _, err := s.Put(ctx, ref, "", nil); !errors.Is(err, ErrInvalidRef) {
			t.Fatalf("Put(%q): expected ErrInvalidRef, got %v", ref, err)
		}
		if _, err := s.URL(ctx, ref); !errors.Is(err, ErrInvalidRef) {
			t.Fatalf("URL(%q): expected ErrInvalidRef, got %v", ref, err)
		}
	}
	if _, err := s.URL(ctx, "missing.txt"); err == nil {
		t.Fatalf("URL of a missing file should fail")
	}
}

func TestRenderText(t *testing.T) {
	got := string(RenderText([]byte("Hi {{NAME}}, order {{ORDER_ID}} / {{NAME}}"), "1001", "Ana"))
	if got != "Hi Ana, order 1001 / Ana" {
		t.Fatalf("RenderText = %q", got)
	}
}

func TestRenderXLSX_ReplacesAllSheets(t *testing.T) {
	tpl := excelize.NewFile()
	_ = tpl.SetCellValue("Sheet1", "A1", "Certificate for {{NAME}}")
	_ = tpl.SetCellValue("Sheet1", "C3", "Order #{{ORDER_ID}}")
	_ = tpl.SetCellValue("Sheet1", "B2", 42)
	if _, err := tpl.NewSheet("Extra"); err != nil {
		t.Fatalf("NewSheet: %v", err)
	}
	_ = tpl.SetCellValue("Extra", "B1", "{{NAME}}-{{ORDER_ID}}")
	buf, err := tpl.WriteToBuffer()
	if err != nil {
		t.Fatalf("WriteToBuffer: %v", err)
	}

	out, err := RenderXLSX(buf.Bytes(), "1001", "Ana")
	if err != nil {
		t.Fatalf("RenderXLSX: %v", err)
	}
	f, err := excelize.OpenReader(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("open rendered: %v", err)
	}
	defer func() { _ = f.Close() }()

	checks := []struct{ sheet, cell, want string }{
		{"Sheet1", "A1", "Certificate for Ana"},
		{"Sheet1", "C3", "Order #1001"},
		{"Sheet1", "B2", "42"},
		{"Extra", "B1", "Ana-1001"},
	}
	for _, c := range checks {
		v, err := f.GetCellValue(c.sheet, c.cell)
		if err != nil || v != c.want {
			t.Fatalf("%s!%s = %q (err=%v), want %q", c.sheet, c.cell, v, err, c.want)
		}
	}
}

func TestRenderXLSX_EmptyOrBadTemplate(t *testing.T) {
	if _, err := RenderXLSX(nil, "1", "A"); err == nil {
		t.Fatalf("expected error for empty template")
	}
	if _, err := RenderXLSX([]byte("not a zip"), "1", "A"); err == nil {
		t.Fatalf("expected error for invalid template")
	}
}

func TestLoadTemplate(t *testing.T) {
	kind, tpl, ext, err := LoadTemplate("")
	if err != nil || kind != KindText || ext != ".html" || !strings.Contains(string(tpl), PlaceholderName) {
		t.Fatalf("default template: kind=%s ext=%s err=%v", kind, ext, err)
	}

	dir := t.TempDir()
	p := filepath.Join(dir, "cert.XLSX")
	if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	kind, _, ext, err = LoadTemplate(p)
	if err != nil || kind != KindXLSX || ext != ".xlsx" {
		t.Fatalf("xlsx template: kind=%s ext=%s err=%v", kind, ext, err)
	}

	if _, _, _, err := LoadTemplate(filepath.Join(dir, "missing.md")); err == nil {
		t.Fatalf("expected error for missing template")
	}
}

func TestTemplateGenerator_GenerateStoresNamedArtifact(t *testing.T) {
	s := newLocal(t)
	g := NewTemplateGenerator(KindText, []byte("<p>{{NAME}} #{{ORDER_ID}}</p>"), ".html", s, time.Second)
	g.Now = func() time.Time { return time.UnixMilli(1700000000000) }

	ref, err := g.Generate(context.Background(), "1001", "<Ana>")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if ref != "1700000000000-order-1001.html" {
		t.Fatalf("ref = %q", ref)
	}
	b, _ := os.ReadFile(filepath.Join(s.Dir, ref))
	if string(b) != "<p>&lt;Ana&gt; #1001</p>" {
		t.Fatalf("html artifact must escape the name, got %q", b)
	}
}

func TestTemplateGenerator_UnknownKind(t *testing.T) {
	g := NewTemplateGenerator(Kind("pdf"), nil, ".pdf", newLocal(t), 0)
	if _, err := g.Generate(context.Background(), "1", "A"); err == nil {
		t.Fatalf("expected error for unknown kind")
	}
}

type failingStore struct{}

func (failingStore) Put(context.Context, string, string, []byte) (string, error) {
	return "", errors.New("disk full")
}
func (failingStore) URL(context.Context, string) (string, error) { return "", nil }

func TestTemplateGenerator_StoreFailure(t *testing.T) {
	g := NewTemplateGenerator(KindText, []byte("x"), ".txt", failingStore{}, 0)
	if _, err := g.Generate(context.Background(), "1", "A"); err == nil || !strings.Contains(err.Error(), "disk full") {
		t.Fatalf("expected wrapped store error, got %v", err)
	}
}

func TestS3Store_PresignedURL(t *testing.T) {
	client := s3.New(s3.Options{
		Region:       "us-east-1",
		BaseEndpoint: aws.String("http://localhost:9000"),
		UsePathStyle: true,
		Credentials: aws.CredentialsProviderFunc(func(context.Context) (aws.Credentials, error) {
			return aws.Credentials{AccessKeyID: "AKID", SecretAccessKey: "SECRET"}, nil
		}),
	})
	s := newS3Store(client, S3StoreConfig{Bucket: "bucket", Prefix: "art/", PresignTTL: time.Minute})

	if got := s.Key("1-order-1.txt"); got != "art/1-order-1.txt" {
		t.Fatalf("Key = %q", got)
	}
	u, err := s.URL(context.Background(), "1-order-1.txt")
	if err != nil {
		t.Fatalf("URL: %v", err)
	}
	if !strings.HasPrefix(u, "http://localhost:9000/bucket/art/1-order-1.txt?") {
		t.Fatalf("unexpected presigned url %q", u)
	}
	if !strings.Contains(u, "X-Amz-Signature=") || !strings.Contains(u, "X-Amz-Expires=60") {
		t.Fatalf("presigned url missing signature/expiry: %q", u)
	}
	if _, err := s.URL(context.Background(), "../secret"); !errors.Is(err, ErrInvalidRef) {
		t.Fatalf("expected ErrInvalidRef, got %v", err)
	}
}

func TestNewS3Store_RequiresBucket(t *testing.T) {
	if _, err := NewS3Store(context.Background(), S3StoreConfig{}); err == nil {
		t.Fatalf("expected error for empty bucket")
	}
}
