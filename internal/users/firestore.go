package users

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const usersCollection = "users"

// FirestoreRepository stores user records in a Cloud Firestore collection,
// one document per phone number.
type FirestoreRepository struct {
	client *firestore.Client
}

// NewFirestoreRepository connects to Firestore. credentialsFile may be empty,
// in which case application default credentials are used.
func NewFirestoreRepository(ctx context.Context, projectID, credentialsFile string) (*FirestoreRepository, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	client, err := firestore.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("NewFirestoreRepository: %w", err)
	}

	return &FirestoreRepository{client: client}, nil
}

// Close releases the underlying Firestore client.
func (r *FirestoreRepository) Close() error {
	return r.client.Close()
}

func (r *FirestoreRepository) doc(phoneNumber string) *firestore.DocumentRef {
	return r.client.Collection(usersCollection).Doc(phoneNumber)
}

// Get implements Repository.
func (r *FirestoreRepository) Get(ctx context.Context, phoneNumber string) (*User, error) {
	snap, err := r.doc(phoneNumber).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("Get %s: %w", phoneNumber, err)
	}

	var user User
	if err := snap.DataTo(&user); err != nil {
		return nil, fmt.Errorf("Get %s: decode: %w", phoneNumber, err)
	}
	return &user, nil
}

// Create implements Repository.
func (r *FirestoreRepository) Create(ctx context.Context, user *User) error {
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now

	if _, err := r.doc(user.PhoneNumber).Create(ctx, user); err != nil {
		return fmt.Errorf("Create %s: %w", user.PhoneNumber, err)
	}
	return nil
}

// SetCredential implements Repository. Only the credential fields are
// touched; the document must already exist.
func (r *FirestoreRepository) SetCredential(ctx context.Context, phoneNumber, accessToken, itemID string) error {
	_, err := r.doc(phoneNumber).Update(ctx, []firestore.Update{
		{Path: "accessToken", Value: accessToken},
		{Path: "itemId", Value: itemID},
		{Path: "updatedAt", Value: firestore.ServerTimestamp},
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return ErrNotFound
		}
		return fmt.Errorf("SetCredential %s: %w", phoneNumber, err)
	}
	return nil
}

// SetPreference implements Repository.
func (r *FirestoreRepository) SetPreference(ctx context.Context, phoneNumber string, pref Preference) error {
	_, err := r.doc(phoneNumber).Update(ctx, []firestore.Update{
		{Path: "notificationPreference", Value: string(pref)},
		{Path: "updatedAt", Value: firestore.ServerTimestamp},
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return ErrNotFound
		}
		return fmt.Errorf("SetPreference %s: %w", phoneNumber, err)
	}
	return nil
}

// Delete implements Repository. The existence precondition makes deleting an
// unknown number report ErrNotFound instead of silently succeeding.
func (r *FirestoreRepository) Delete(ctx context.Context, phoneNumber string) error {
	_, err := r.doc(phoneNumber).Delete(ctx, firestore.Exists)
	if err != nil {
		switch status.Code(err) {
		case codes.NotFound, codes.FailedPrecondition:
			return ErrNotFound
		}
		return fmt.Errorf("Delete %s: %w", phoneNumber, err)
	}
	return nil
}

// List implements Repository.
func (r *FirestoreRepository) List(ctx context.Context) ([]*User, error) {
	iter := r.client.Collection(usersCollection).Documents(ctx)
	defer iter.Stop()

	var result []*User
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("List: %w", err)
		}

		var user User
		if err := snap.DataTo(&user); err != nil {
			return nil, fmt.Errorf("List: decode %s: %w", snap.Ref.ID, err)
		}
		result = append(result, &user)
	}
	return result, nil
}

// Ensure FirestoreRepository implements the Repository interface.
var _ Repository = (*FirestoreRepository)(nil)
