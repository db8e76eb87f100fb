package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"librarydesk/internal/models"
	"librarydesk/internal/repositories"
)

// MemberInput carries the caller-supplied fields of a member. An empty
// Status means active.
type MemberInput struct {
	Name   string
	Email  string
	Phone  *string
	Status models.MemberStatus
}

func (in MemberInput) validate() error {
	switch {
	case strings.TrimSpace(in.Name) == "":
		return fmt.Errorf("%w: name is required", ErrInvalidInput)
	case strings.TrimSpace(in.Email) == "":
		return fmt.Errorf("%w: email is required", ErrInvalidInput)
	}
	return nil
}

// MemberService manages library members.
type MemberService interface {
	Add(ctx context.Context, in MemberInput) (*models.Member, error)
	List(ctx context.Context) ([]models.Member, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Member, error)
	Update(ctx context.Context, id uuid.UUID, in MemberInput) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type memberService struct {
	base
	memberRepo repositories.MemberRepository
}

func newMemberService(b base, memberRepo repositories.MemberRepository) MemberService {
	return &memberService{base: b, memberRepo: memberRepo}
}

// Add registers a member as of today. The status is always active.
func (s *memberService) Add(ctx context.Context, in MemberInput) (*models.Member, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	member := &models.Member{
		Name:           in.Name,
		Email:          in.Email,
		Phone:          in.Phone,
		MembershipDate: s.today(),
		Status:         models.MemberStatusActive,
		CreatedAt:      s.now(),
	}

	db, cancel := s.session(ctx)
	defer cancel()
	if err := s.memberRepo.Create(db, member); err != nil {
		log.Printf("[ERROR] AddMember: failed to create member %q: %v", in.Email, err)
		return nil, storeError("add member", err)
	}
	log.Printf("[INFO] AddMember: created member %q (id=%s)", member.Name, member.ID)
	return member, nil
}

// List returns all members, newest first.
func (s *memberService) List(ctx context.Context) ([]models.Member, error) {
	db, cancel := s.session(ctx)
	defer cancel()
	members, err := s.memberRepo.List(db)
	return members, storeError("list members", err)
}

func (s *memberService) Get(ctx context.Context, id uuid.UUID) (*models.Member, error) {
	db, cancel := s.session(ctx)
	defer cancel()
	member, err := s.memberRepo.GetByID(db, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMemberNotFound
		}
		return nil, storeError("get member", err)
	}
	return member, nil
}

// Update rewrites a member's details. An unknown id is not an error: the
// update simply touches no rows.
func (s *memberService) Update(ctx context.Context, id uuid.UUID, in MemberInput) error {
	if err := in.validate(); err != nil {
		return err
	}
	status := in.Status
	if status == "" {
		status = models.MemberStatusActive
	}

	db, cancel := s.session(ctx)
	defer cancel()
	n, err := s.memberRepo.Update(db, &models.Member{
		ID:     id,
		Name:   in.Name,
		Email:  in.Email,
		Phone:  in.Phone,
		Status: status,
	})
	if err != nil {
		log.Printf("[ERROR] UpdateMember: failed to update member %s: %v", id, err)
		return storeError("update member", err)
	}
	if n == 0 {
		log.Printf("[WARN] UpdateMember: no member with id %s", id)
		return nil
	}
	log.Printf("[INFO] UpdateMember: updated member %s (status=%s)", id, status)
	return nil
}

// Delete removes the member whether or not transactions still reference it.
func (s *memberService) Delete(ctx context.Context, id uuid.UUID) error {
	db, cancel := s.session(ctx)
	defer cancel()
	n, err := s.memberRepo.Delete(db, id)
	if err != nil {
		log.Printf("[ERROR] DeleteMember: failed to delete member %s: %v", id, err)
		return storeError("delete member", err)
	}
	log.Printf("[INFO] DeleteMember: member %s deleted (%d rows)", id, n)
	return nil
}
