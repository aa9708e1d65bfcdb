package blocklist

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTempCSV(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "blocked.csv")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write temp csv: %v", err)
	}
	return path
}

func TestLoad_TwoAndThreeColumnRows(t *testing.T) {
	path := writeTempCSV(t, "did:x,com.atproto.moderation.defs#reasonSpam,too much spam\n"+
		"did:y,bad actor\n")

	list, err := Load(path, false)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	x := list.Get("did:x")
	if x == nil || x.ReasonType != "com.atproto.moderation.defs#reasonSpam" || x.Reason != "too much spam" {
		t.Fatalf("unexpected item for did:x: %+v", x)
	}

	y := list.Get("did:y")
	if y == nil || y.ReasonType != "" || y.Reason != "bad actor" {
		t.Fatalf("unexpected item for did:y: %+v", y)
	}
}

func TestLoad_SkipsNonDIDRows(t *testing.T) {
	path := writeTempCSV(t, "did,reason_type,reason\n"+
		"did:x,,\n")
	list, err := Load(path, false)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if list.Get("did") != nil {
		t.Fatalf("header-like row should have been skipped")
	}
	if list.Get("did:x") == nil {
		t.Fatalf("expected did:x to be present")
	}
}

func TestLoad_MissingFileReturnsEmptyList(t *testing.T) {
	list, err := Load(filepath.Join(t.TempDir(), "absent.csv"), false)
	if err != nil {
		t.Fatalf("Load of missing file should not error: %v", err)
	}
	if len(list.BadDIDs()) != 0 {
		t.Fatalf("expected empty list")
	}
}

func TestMergeWith_JoinsReasonsAndAnnotatesKindChange(t *testing.T) {
	it := &Item{DID: "did:x", ReasonType: ReasonSpam, Reason: "spammy"}
	it.mergeWith(ReasonRude, "also rude")

	want := "spammy,(" + ReasonRude + ")also rude"
	if it.Reason != want {
		t.Fatalf("Reason = %q, want %q", it.Reason, want)
	}
	if it.ReasonType != ReasonSpam {
		t.Fatalf("first reason_type should win, got %q", it.ReasonType)
	}
}

func TestMergeWith_SameKindDoesNotAnnotate(t *testing.T) {
	it := &Item{DID: "did:x", ReasonType: ReasonSpam, Reason: "first"}
	it.mergeWith(ReasonSpam, "second")
	if it.Reason != "first,second" {
		t.Fatalf("Reason = %q, want %q", it.Reason, "first,second")
	}
}

func TestMergeWith_EmptyReasonTypeFillsIn(t *testing.T) {
	it := &Item{DID: "did:x"}
	it.mergeWith(ReasonMisleading, "r1")
	if it.ReasonType != ReasonMisleading {
		t.Fatalf("ReasonType = %q, want %q", it.ReasonType, ReasonMisleading)
	}
}

func TestAdd_MergesDuplicateDID(t *testing.T) {
	list, err := Load(filepath.Join(t.TempDir(), "absent.csv"), false)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	list.Add("did:x", ReasonSpam, "first")
	list.Add("did:x", ReasonSpam, "second")

	item := list.Get("did:x")
	if item == nil || item.Reason != "first,second" {
		t.Fatalf("unexpected merged item: %+v", item)
	}
}

func TestBadDIDs_ClassifiesOnlyKnownReasonKinds(t *testing.T) {
	path := writeTempCSV(t, "did:bad,"+ReasonSpam+",x\n"+
		"did:unknown,com.atproto.moderation.defs#reasonOther,x\n"+
		"did:empty,,\n")
	list, err := Load(path, false)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	bad := list.BadDIDs()
	if !bad["did:bad"] {
		t.Fatalf("expected did:bad to be classified bad")
	}
	if bad["did:unknown"] {
		t.Fatalf("unknown reason_type should not be classified bad")
	}
	if bad["did:empty"] {
		t.Fatalf("empty reason_type should not be bad when defaultBad=false")
	}
}

func TestBadDIDs_DefaultBadTrueIncludesEmptyReasonType(t *testing.T) {
	path := writeTempCSV(t, "did:empty,,\n")
	list, err := Load(path, true)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !list.BadDIDs()["did:empty"] {
		t.Fatalf("expected did:empty to be bad when defaultBad=true")
	}
}

func TestAnnotateRemoved_PrefixesOnceAndPreservesContent(t *testing.T) {
	list, err := Load(filepath.Join(t.TempDir(), "absent.csv"), false)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	list.Add("did:z", ReasonSpam, "original reason")
	list.AnnotateRemoved("did:z")
	list.AnnotateRemoved("did:z")

	item := list.Get("did:z")
	want := "(account removed)original reason"
	if item.Reason != want {
		t.Fatalf("Reason = %q, want %q (annotation should not duplicate)", item.Reason, want)
	}
}

func TestWrite_RoundTripsInIndexOrder(t *testing.T) {
	path := writeTempCSV(t, "did:a,,first\n"+"did:b,,second\n")
	list, err := Load(path, false)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	list.Add("did:c", "", "third")

	if err := list.Write(); err != nil {
		t.Fatalf("Write: %v", err)
	}

	reloaded, err := Load(path, false)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	for _, did := range []string{"did:a", "did:b", "did:c"} {
		if reloaded.Get(did) == nil {
			t.Fatalf("expected %s to survive round trip", did)
		}
	}
}
