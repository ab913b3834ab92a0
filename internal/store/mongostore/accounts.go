package mongostore

import (
	"context"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/options"

	"easymanager/internal/models"
	"easymanager/internal/store"
)

func (s *Store) ListEmployees(ctx context.Context) ([]models.Employee, error) {
	ctx, cancel := opContext(ctx)
	defer cancel()

	cursor, err := s.employees.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "empId", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	employees := make([]models.Employee, 0)
	if err := cursor.All(ctx, &employees); err != nil {
		return nil, err
	}
	return employees, nil
}

func (s *Store) CreateEmployee(ctx context.Context, e *models.Employee) error {
	ctx, cancel := opContext(ctx)
	defer cancel()

	if e.ID.IsZero() {
		e.ID = primitive.NewObjectID()
	}
	_, err := s.employees.InsertOne(ctx, e)
	return translate(err)
}

func (s *Store) CreateUser(ctx context.Context, u *models.User) error {
	ctx, cancel := opContext(ctx)
	defer cancel()

	if u.ID.IsZero() {
		u.ID = primitive.NewObjectID()
	}
	_, err := s.users.InsertOne(ctx, u)
	return translate(err)
}

func (s *Store) FindUserByEmail(ctx context.Context, email string) (models.User, error) {
	ctx, cancel := opContext(ctx)
	defer cancel()

	var user models.User
	err := s.users.FindOne(ctx, bson.M{"email": strings.ToLower(strings.TrimSpace(email))}).Decode(&user)
	return user, translate(err)
}

func (s *Store) GetUser(ctx context.Context, id primitive.ObjectID) (models.User, error) {
	ctx, cancel := opContext(ctx)
	defer cancel()

	var user models.User
	err := s.users.FindOne(ctx, bson.M{"_id": id}).Decode(&user)
	return user, translate(err)
}

func (s *Store) TouchLastLogin(ctx context.Context, id primitive.ObjectID, at time.Time) error {
	return s.setUserFields(ctx, id, bson.M{"lastLogin": at})
}

func (s *Store) SetPassword(ctx context.Context, id primitive.ObjectID, passwordHash string, at time.Time) error {
	return s.setUserFields(ctx, id, bson.M{"passwordHash": passwordHash, "updatedAt": at})
}

func (s *Store) LinkGoogle(ctx context.Context, id primitive.ObjectID, googleID, picture string, at time.Time) error {
	set := bson.M{"googleId": googleID, "updatedAt": at}
	if picture != "" {
		set["picture"] = picture
	}
	return s.setUserFields(ctx, id, set)
}

func (s *Store) setUserFields(ctx context.Context, id primitive.ObjectID, set bson.M) error {
	ctx, cancel := opContext(ctx)
	defer cancel()

	res, err := s.users.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}
