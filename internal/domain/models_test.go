package domain

import (
	"reflect"
	"testing"
	"time"
)

func TestStreamKindClassification(t *testing.T) {
	cases := []struct {
		rel  string
		want StreamKind
	}{
		{"", StreamMaster},
		{"main.m3u8", StreamVariant},
		{"hls1/main/0.ts", StreamSegment},
		{"hls1/main/init.mp4", StreamOther},
	}
	for _, tc := range cases {
		req := StreamRequest{ItemID: "movie-42", RelativePath: tc.rel}
		if got := req.Kind(); got != tc.want {
			t.Fatalf("Kind(%q) = %s, want %s", tc.rel, got, tc.want)
		}
	}
}

func TestStreamRequestIsManifest(t *testing.T) {
	if !(StreamRequest{ItemID: "a"}).IsManifest() {
		t.Fatal("master request must be a manifest")
	}
	if !(StreamRequest{ItemID: "a", RelativePath: "main.m3u8"}).IsManifest() {
		t.Fatal("variant request must be a manifest")
	}
	if (StreamRequest{ItemID: "a", RelativePath: "seg-0.ts"}).IsManifest() {
		t.Fatal("segment request must not be a manifest")
	}
}

func TestCredentialExpiry(t *testing.T) {
	now := time.Now()
	fresh := UpstreamCredential{Token: "t", AcquiredAt: now.Add(-30 * time.Minute)}
	if fresh.Expired(now) {
		t.Fatal("credential inside TTL reported expired")
	}
	stale := UpstreamCredential{Token: "t", AcquiredAt: now.Add(-2 * time.Hour)}
	if !stale.Expired(now) {
		t.Fatal("credential past TTL reported valid")
	}
	empty := UpstreamCredential{}
	if !empty.Expired(now) {
		t.Fatal("empty credential must always be expired")
	}
}

func TestStreamKindNames(t *testing.T) {
	if StreamMaster.String() != "master" || StreamSegment.String() != "segment" {
		t.Fatalf("unexpected kind names: %s, %s", StreamMaster, StreamSegment)
	}
}

func TestWatchPositionJSONTags(t *testing.T) {
	expectJSONTag(t, WatchPosition{}, "UserID", "userId")
	expectJSONTag(t, WatchPosition{}, "ItemID", "itemId")
	expectJSONTag(t, WatchPosition{}, "Position", "position")
	expectJSONTag(t, WatchPosition{}, "Duration", "duration")
}

func TestAudioTrackDescriptorJSONTags(t *testing.T) {
	expectJSONTag(t, AudioTrackDescriptor{}, "Index", "index")
	expectJSONTag(t, AudioTrackDescriptor{}, "MediaSourceID", "mediaSourceId")
}

func TestServerConfigHidesAPIKey(t *testing.T) {
	expectJSONTag(t, ServerConfig{}, "APIKey", "-")
}

func expectJSONTag(t *testing.T, v interface{}, field, want string) {
	t.Helper()
	f, ok := reflect.TypeOf(v).FieldByName(field)
	if !ok {
		t.Fatalf("field %s not found on %T", field, v)
	}
	if got := f.Tag.Get("json"); got != want {
		t.Fatalf("%T.%s json tag = %q, want %q", v, field, got, want)
	}
}
