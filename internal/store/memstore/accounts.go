package memstore

import (
	"context"
	"sort"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"easymanager/internal/models"
	"easymanager/internal/store"
)

func (s *Store) ListEmployees(ctx context.Context) ([]models.Employee, error) {
	employees := make([]models.Employee, 0)
	s.read(func() {
		for _, e := range s.data.employees {
			employees = append(employees, e)
		}
	})
	sort.SliceStable(employees, func(i, j int) bool { return employees[i].EmpID < employees[j].EmpID })
	return employees, nil
}

func (s *Store) CreateEmployee(ctx context.Context, e *models.Employee) error {
	return s.write(ctx, func() error {
		for _, existing := range s.data.employees {
			if existing.EmpID == e.EmpID {
				return duplicate("empId", e.EmpID)
			}
		}
		if e.ID.IsZero() {
			e.ID = primitive.NewObjectID()
		}
		s.data.employees[e.ID] = *e
		return nil
	})
}

func (s *Store) CreateUser(ctx context.Context, u *models.User) error {
	return s.write(ctx, func() error {
		for _, existing := range s.data.users {
			if existing.Email == normalizeEmail(u.Email) {
				return duplicate("email", u.Email)
			}
			if existing.Username == u.Username {
				return duplicate("username", u.Username)
			}
		}
		if u.ID.IsZero() {
			u.ID = primitive.NewObjectID()
		}
		u.Email = normalizeEmail(u.Email)
		s.data.users[u.ID] = *u
		return nil
	})
}

func (s *Store) FindUserByEmail(ctx context.Context, email string) (models.User, error) {
	email = normalizeEmail(email)
	var (
		found models.User
		ok    bool
	)
	s.read(func() {
		for _, u := range s.data.users {
			if u.Email == email {
				found, ok = u, true
				return
			}
		}
	})
	if !ok {
		return models.User{}, store.ErrNotFound
	}
	return found, nil
}

func (s *Store) GetUser(ctx context.Context, id primitive.ObjectID) (models.User, error) {
	var (
		u  models.User
		ok bool
	)
	s.read(func() { u, ok = s.data.users[id] })
	if !ok {
		return models.User{}, store.ErrNotFound
	}
	return u, nil
}

func (s *Store) TouchLastLogin(ctx context.Context, id primitive.ObjectID, at time.Time) error {
	return s.write(ctx, func() error {
		u, ok := s.data.users[id]
		if !ok {
			return store.ErrNotFound
		}
		u.LastLogin = &at
		s.data.users[id] = u
		return nil
	})
}

func (s *Store) SetPassword(ctx context.Context, id primitive.ObjectID, passwordHash string, at time.Time) error {
	return s.updateUser(ctx, id, func(u *models.User) {
		u.PasswordHash = passwordHash
		u.UpdatedAt = at
	})
}

func (s *Store) LinkGoogle(ctx context.Context, id primitive.ObjectID, googleID, picture string, at time.Time) error {
	return s.updateUser(ctx, id, func(u *models.User) {
		u.GoogleID = googleID
		if picture != "" {
			u.Picture = picture
		}
		u.UpdatedAt = at
	})
}

func (s *Store) updateUser(ctx context.Context, id primitive.ObjectID, change func(u *models.User)) error {
	return s.write(ctx, func() error {
		u, ok := s.data.users[id]
		if !ok {
			return store.ErrNotFound
		}
		change(&u)
		s.data.users[id] = u
		return nil
	})
}
