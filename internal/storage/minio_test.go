package storage

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestPublicReadPolicy(t *testing.T) {
	raw, err := publicReadPolicy("wine-collection")
	if err != nil {
		t.Fatal(err)
	}

	var p bucketPolicy
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		t.Fatalf("policy is not valid JSON: %v", err)
	}
	if p.Version != "2012-10-17" || len(p.Statement) != 1 {
		t.Fatalf("unexpected policy %s", raw)
	}
	st := p.Statement[0]
	if st.Effect != "Allow" || !reflect.DeepEqual(st.Principal["AWS"], []string{"*"}) {
		t.Fatalf("expected an anonymous allow, got %+v", st)
	}
	if !reflect.DeepEqual(st.Action, []string{"s3:GetObject"}) {
		t.Fatalf("only reads may be public, got %v", st.Action)
	}
	if !reflect.DeepEqual(st.Resource, []string{"arn:aws:s3:::wine-collection/uploads/*"}) {
		t.Fatalf("unexpected resource %v", st.Resource)
	}
}
