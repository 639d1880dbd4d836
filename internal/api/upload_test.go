package api

import (
	"context"
	"testing"
)

func TestImageUploaderResolveURL_PassthroughWithoutStorage(t *testing.T) {
	u := &ImageUploader{}

	// 存储未配置时直接返回 Key，方便测试环境跑完整 handler 流程。
	url, err := u.ResolveURL(context.Background(), "posting-images/1/abc.png")
	if err != nil {
		t.Fatalf("resolve url: %v", err)
	}
	if url != "posting-images/1/abc.png" {
		t.Fatalf("expected key passthrough, got %q", url)
	}

	url, err = u.ResolveURL(context.Background(), "")
	if err != nil || url != "" {
		t.Fatalf("expected empty key to stay empty, got %q err=%v", url, err)
	}
}

func TestImageUploaderRemove_NoopWithoutStorage(t *testing.T) {
	u := &ImageUploader{}

	if err := u.Remove(context.Background(), "posting-images/1/abc.png"); err != nil {
		t.Fatalf("remove without storage: %v", err)
	}
	if err := u.Remove(context.Background(), ""); err != nil {
		t.Fatalf("remove empty key: %v", err)
	}
}
