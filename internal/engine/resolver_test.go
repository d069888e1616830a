package engine

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/Priya8975/campaign-mailer/internal/domain"
	"github.com/Priya8975/campaign-mailer/internal/store/memory"
)

func TestResolver_SubscribedTaggedAndUnique(t *testing.T) {
	st := memory.New()
	owner := st.AddOwner(domain.Owner{})
	vip := st.AddTag(domain.Tag{OwnerID: owner.ID, Name: "vip"})
	news := st.AddTag(domain.Tag{OwnerID: owner.ID, Name: "news"})
	other := st.AddTag(domain.Tag{OwnerID: owner.ID, Name: "other"})

	base := time.Now()
	first := st.AddContact(domain.Contact{OwnerID: owner.ID, Email: "ann@example.com", TagIDs: []string{vip.ID}, CreatedAt: base})
	st.AddContact(domain.Contact{OwnerID: owner.ID, Email: "ANN@example.com", TagIDs: []string{news.ID}, CreatedAt: base.Add(time.Second)})
	st.AddContact(domain.Contact{OwnerID: owner.ID, Email: "bob@example.com", TagIDs: []string{vip.ID, news.ID}, CreatedAt: base.Add(2 * time.Second)})
	st.AddContact(domain.Contact{OwnerID: owner.ID, Email: "gone@example.com", TagIDs: []string{vip.ID}, Status: domain.ContactUnsubscribed})
	st.AddContact(domain.Contact{OwnerID: owner.ID, Email: "bounced@example.com", TagIDs: []string{news.ID}, Status: domain.ContactBounced})
	st.AddContact(domain.Contact{OwnerID: owner.ID, Email: "untagged@example.com", TagIDs: []string{other.ID}})

	got, err := NewResolver(st).Resolve(context.Background(), owner.ID, []string{vip.ID, news.ID})
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}

	want := []string{"ann@example.com", "bob@example.com"}
	if len(got) != len(want) {
		t.Fatalf("Resolve() returned %d contacts, want %d: %+v", len(got), len(want), got)
	}
	seen := map[string]bool{}
	for i, c := range got {
		if c.Email != want[i] {
			t.Errorf("contact %d = %s, want %s", i, c.Email, want[i])
		}
		key := strings.ToLower(c.Email)
		if seen[key] {
			t.Errorf("duplicate email %s", c.Email)
		}
		seen[key] = true
	}
	if got[0].ContactID != first.ID {
		t.Errorf("duplicate address should resolve to the first contact, got %s", got[0].ContactID)
	}
}

func TestResolver_Validation(t *testing.T) {
	st := memory.New()
	owner := st.AddOwner(domain.Owner{})
	stranger := st.AddOwner(domain.Owner{})
	foreign := st.AddTag(domain.Tag{OwnerID: stranger.ID, Name: "theirs"})

	tests := []struct {
		name   string
		tagIDs []string
	}{
		{"no tags", nil},
		{"blank tag", []string{""}},
		{"tag of another owner", []string{foreign.ID}},
		{"unknown tag", []string{"missing"}},
	}

	r := NewResolver(st)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Resolve(context.Background(), owner.ID, tt.tagIDs)
			var ve *domain.ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("Resolve() error = %v, want ValidationError", err)
			}
		})
	}
}

func TestResolver_NoMatchingContacts(t *testing.T) {
	st := memory.New()
	owner := st.AddOwner(domain.Owner{})
	tag := st.AddTag(domain.Tag{OwnerID: owner.ID, Name: "empty"})

	got, err := NewResolver(st).Resolve(context.Background(), owner.ID, []string{tag.ID})
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Resolve() = %v, want empty", got)
	}
}
