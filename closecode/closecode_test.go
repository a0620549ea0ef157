package closecode

import "testing"

func TestClassify(t *testing.T) {
	cases := []struct {
		name        string
		code        int
		reason      string
		wasClean    bool
		wantAction  Action
		wantDropS   bool
		wantDropSeq bool
	}{
		{"normal", CloseNormal, "", true, Retry, false, false},
		{"abnormal", CloseAbnormal, "", false, Retry, false, false},
		{"auth failed is fatal", CloseAuthFailed, "", false, Fatal, false, false},
		{"invalid session drops session and seq", CloseInvalidSession1, "", false, RetryFreshSession, true, true},
		{"invalid session 2 drops session and seq", CloseInvalidSession2, "", false, RetryFreshSession, true, true},
		{"invalid sequence drops seq", CloseInvalidSequence, "", false, RetryFreshSession, false, true},
		{"rate limited retries", CloseRateLimited, "", false, Retry, false, false},
		{"invalid shard key is fatal", CloseInvalidShardKey, "", false, Fatal, false, false},
		{"too many guilds is fatal", CloseTooManyGuilds, "", false, Fatal, false, false},
		{"unknown clean close retries", 4999, "", true, Retry, false, false},
		{"unknown dirty close retries with reason", 4999, "boom", false, Retry, false, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Classify(tc.code, tc.reason, tc.wasClean)
			if got.Action != tc.wantAction {
				t.Fatalf("Action = %v, want %v", got.Action, tc.wantAction)
			}
			if got.DropSession != tc.wantDropS {
				t.Fatalf("DropSession = %v, want %v", got.DropSession, tc.wantDropS)
			}
			if got.DropSeq != tc.wantDropSeq {
				t.Fatalf("DropSeq = %v, want %v", got.DropSeq, tc.wantDropSeq)
			}
		})
	}
}

func TestIsFatal(t *testing.T) {
	if !IsFatal(Classify(CloseAuthFailed, "", false)) {
		t.Fatal("expected auth failed to classify as fatal")
	}
	if IsFatal(Classify(CloseNormal, "", true)) {
		t.Fatal("expected normal close not to classify as fatal")
	}
}
