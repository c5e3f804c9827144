package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/trezcool/bitacora/core/directory"
	"github.com/trezcool/bitacora/core/user"
)

func CreateUser(
	t *testing.T,
	repo user.Repository,
	name, email, pwd string,
	roles []string,
	isActive bool,
	createdAt ...time.Time,
) user.User {
	t.Helper()
	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		Name:      name,
		Email:     email,
		Roles:     roles,
		IsActive:  isActive,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("CreateUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

// CreateLearner registers a learner profile linked to `usr`.
func CreateLearner(t *testing.T, svc directory.Service, usr user.User, doc string, instructorID string) directory.Learner {
	t.Helper()
	lrn, err := svc.CreateLearner(context.Background(), directory.NewLearner{
		UserID:         usr.ID,
		FullName:       usr.Name,
		DocumentType:   "CC",
		DocumentNumber: doc,
		Email:          usr.Email,
		InstructorID:   instructorID,
	})
	if err != nil {
		t.Fatalf("CreateLearner() failed: %v", err)
	}
	return lrn
}

// CreateInstructor registers an instructor profile linked to `usr`.
func CreateInstructor(t *testing.T, svc directory.Service, usr user.User, doc string) directory.Instructor {
	t.Helper()
	ins, err := svc.CreateInstructor(context.Background(), directory.NewInstructor{
		UserID:         usr.ID,
		FullName:       usr.Name,
		DocumentNumber: doc,
		Email:          usr.Email,
	})
	if err != nil {
		t.Fatalf("CreateInstructor() failed: %v", err)
	}
	return ins
}
