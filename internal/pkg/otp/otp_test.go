package otp

import (
	"testing"
	"time"
)

func TestGenerate_Format(t *testing.T) {
	code, err := Generate(6)
	if err != nil {
		t.Fatalf("Generate error: %v", err)
	}
	if len(code) != 6 {
		t.Fatalf("expected 6 digits, got %q", code)
	}
	for _, ch := range code {
		if ch < '0' || ch > '9' {
			t.Fatalf("expected numeric code, got %q", code)
		}
	}
}

func TestGenerate_AllDigitsAppear(t *testing.T) {
	// 拒绝采样后每个数字都应出现；出现次数的粗略下界能抓住
	// 永远不产生某个数字这类退化。
	counts := [10]int{}
	const rounds = 500
	for i := 0; i < rounds; i++ {
		code, err := Generate(8)
		if err != nil {
			t.Fatalf("Generate error: %v", err)
		}
		if len(code) != 8 {
			t.Fatalf("expected 8 digits, got %q", code)
		}
		for _, ch := range code {
			if ch < '0' || ch > '9' {
				t.Fatalf("expected numeric code, got %q", code)
			}
			counts[ch-'0']++
		}
	}
	for d, n := range counts {
		if n == 0 {
			t.Fatalf("digit %d never generated in %d rounds", d, rounds)
		}
	}
}

func TestGenerate_InvalidLength(t *testing.T) {
	if _, err := Generate(0); err == nil {
		t.Fatalf("expected error for zero length")
	}
	if _, err := Generate(-3); err == nil {
		t.Fatalf("expected error for negative length")
	}
}

func TestValid_Match(t *testing.T) {
	issued := time.Now().Add(-1 * time.Minute)
	if !Valid("042913", &issued, "042913", DefaultTTL) {
		t.Fatalf("expected fresh matching code to be valid")
	}
}

func TestValid_WrongCode(t *testing.T) {
	issued := time.Now()
	if Valid("042913", &issued, "042914", DefaultTTL) {
		t.Fatalf("expected mismatched code to be invalid")
	}
}

func TestValid_Expired(t *testing.T) {
	issued := time.Now().Add(-6 * time.Minute)
	if Valid("042913", &issued, "042913", 5*time.Minute) {
		t.Fatalf("expected code older than ttl to be invalid")
	}
}

func TestValid_NoPendingCode(t *testing.T) {
	issued := time.Now()
	if Valid("", nil, "042913", DefaultTTL) {
		t.Fatalf("expected missing code to be invalid")
	}
	if Valid("", &issued, "", DefaultTTL) {
		t.Fatalf("expected empty submission to be invalid")
	}
}
