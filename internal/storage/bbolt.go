package storage

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"dmchat/internal/auth"
	"dmchat/internal/models"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"
)

var (
	bucketUsers     = []byte("users")
	bucketEmails    = []byte("users_by_email")
	bucketUsernames = []byte("users_by_username")
	bucketMessages  = []byte("messages")
)

type BboltStorage struct {
	db  *bbolt.DB
	now func() time.Time
}

func NewBboltStorage(path string) (*BboltStorage, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bbolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketUsers, bucketEmails, bucketUsernames, bucketMessages} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create buckets: %w", err)
	}

	return &BboltStorage{db: db, now: time.Now}, nil
}

func (s *BboltStorage) Close() error {
	return s.db.Close()
}

// CreateUser stores a new account. Email and username must both be unused.
func (s *BboltStorage) CreateUser(credentials auth.UserCredentials) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		emails := tx.Bucket(bucketEmails)
		usernames := tx.Bucket(bucketUsernames)

		emailKey := []byte(strings.ToLower(credentials.Email))
		usernameKey := []byte(strings.ToLower(credentials.Username))
		if emails.Get(emailKey) != nil || usernames.Get(usernameKey) != nil {
			return models.ErrUserExists
		}

		if err := putUser(tx, credentials); err != nil {
			return err
		}
		if err := emails.Put(emailKey, []byte(credentials.ID)); err != nil {
			return err
		}
		return usernames.Put(usernameKey, []byte(credentials.ID))
	})
}

// UpdateUser overwrites an existing account. Email and username are immutable.
func (s *BboltStorage) UpdateUser(credentials auth.UserCredentials) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if tx.Bucket(bucketUsers).Get([]byte(credentials.ID)) == nil {
			return fmt.Errorf("user %s: %w", credentials.ID, models.ErrNotFound)
		}
		return putUser(tx, credentials)
	})
}

func (s *BboltStorage) GetUserByEmail(email string) (auth.UserCredentials, error) {
	var credentials auth.UserCredentials
	err := s.db.View(func(tx *bbolt.Tx) error {
		id := tx.Bucket(bucketEmails).Get([]byte(strings.ToLower(email)))
		if id == nil {
			return fmt.Errorf("user with email %s: %w", email, models.ErrNotFound)
		}
		var err error
		credentials, err = getUser(tx, id)
		return err
	})
	return credentials, err
}

func (s *BboltStorage) GetUser(id string) (models.User, error) {
	var credentials auth.UserCredentials
	err := s.db.View(func(tx *bbolt.Tx) error {
		var err error
		credentials, err = getUser(tx, []byte(id))
		return err
	})
	return credentials.User, err
}

// ListUsers returns all accounts ordered by username.
func (s *BboltStorage) ListUsers() ([]models.User, error) {
	var users []models.User
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketUsers).ForEach(func(k, v []byte) error {
			var dbUser DBUser
			if err := dbUser.UnmarshalBinary(v); err != nil {
				return err
			}
			users = append(users, fromDBUser(dbUser).User)
			return nil
		})
	})

	sort.Slice(users, func(i, j int) bool {
		return users[i].Username < users[j].Username
	})
	return users, err
}

// CreateMessage persists a new direct message and assigns its id and
// creation time.
func (s *BboltStorage) CreateMessage(senderID, receiverID, text string) (models.Message, error) {
	message := models.Message{
		ID:         uuid.NewString(),
		SenderID:   senderID,
		ReceiverID: receiverID,
		Text:       text,
		CreatedAt:  s.now().UnixMilli(),
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		threadBucket, err := tx.Bucket(bucketMessages).CreateBucketIfNotExists(threadKey(senderID, receiverID))
		if err != nil {
			return fmt.Errorf("failed to create thread bucket: %w", err)
		}

		seq, err := threadBucket.NextSequence()
		if err != nil {
			return fmt.Errorf("failed to allocate message sequence: %w", err)
		}

		dbMessage := DBMessage{
			Seq:        seq,
			ID:         message.ID,
			SenderID:   message.SenderID,
			ReceiverID: message.ReceiverID,
			Text:       message.Text,
			CreatedAt:  message.CreatedAt,
		}

		data, err := dbMessage.MarshalBinary()
		if err != nil {
			return fmt.Errorf("failed to marshal message: %w", err)
		}

		if err := threadBucket.Put(dbMessage.Key(), data); err != nil {
			return fmt.Errorf("failed to put message: %w", err)
		}
		return nil
	})
	if err != nil {
		return models.Message{}, err
	}

	return message, nil
}

// QueryThread returns every message exchanged between two users, oldest first.
func (s *BboltStorage) QueryThread(userA, userB string) ([]models.Message, error) {
	messages := []models.Message{}
	err := s.db.View(func(tx *bbolt.Tx) error {
		threadBucket := tx.Bucket(bucketMessages).Bucket(threadKey(userA, userB))
		if threadBucket == nil {
			return nil // No messages between these users
		}

		c := threadBucket.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var dbMsg DBMessage
			if err := dbMsg.UnmarshalBinary(v); err != nil {
				return err
			}
			messages = append(messages, models.Message{
				ID:         dbMsg.ID,
				SenderID:   dbMsg.SenderID,
				ReceiverID: dbMsg.ReceiverID,
				Text:       dbMsg.Text,
				CreatedAt:  dbMsg.CreatedAt,
			})
		}
		return nil
	})

	// Sequence order already follows creation; the stable sort only guards
	// against wall clock steps.
	sort.SliceStable(messages, func(i, j int) bool {
		return messages[i].CreatedAt < messages[j].CreatedAt
	})
	return messages, err
}

func putUser(tx *bbolt.Tx, credentials auth.UserCredentials) error {
	dbUser := &DBUser{
		ID:           credentials.ID,
		Username:     credentials.Username,
		Email:        credentials.Email,
		AvatarURL:    credentials.AvatarURL,
		PasswordHash: credentials.PasswordHash,
		Verified:     credentials.Verified,
		OTP:          credentials.OTP,
		OTPExpires:   credentials.OTPExpires,
		CreatedAt:    credentials.CreatedAt,
	}

	data, err := dbUser.MarshalBinary()
	if err != nil {
		return err
	}
	return tx.Bucket(bucketUsers).Put(dbUser.Key(), data)
}

func getUser(tx *bbolt.Tx, id []byte) (auth.UserCredentials, error) {
	data := tx.Bucket(bucketUsers).Get(id)
	if data == nil {
		return auth.UserCredentials{}, fmt.Errorf("user %s: %w", id, models.ErrNotFound)
	}

	var dbUser DBUser
	if err := dbUser.UnmarshalBinary(data); err != nil {
		return auth.UserCredentials{}, err
	}
	return fromDBUser(dbUser), nil
}

func fromDBUser(dbUser DBUser) auth.UserCredentials {
	return auth.UserCredentials{
		User: models.User{
			ID:        dbUser.ID,
			Username:  dbUser.Username,
			Email:     dbUser.Email,
			AvatarURL: dbUser.AvatarURL,
			Verified:  dbUser.Verified,
			CreatedAt: dbUser.CreatedAt,
		},
		PasswordHash: dbUser.PasswordHash,
		OTP:          dbUser.OTP,
		OTPExpires:   dbUser.OTPExpires,
	}
}

// threadKey is the same for both directions of a conversation.
func threadKey(userA, userB string) []byte {
	ids := []string{userA, userB}
	sort.Strings(ids)
	return []byte(ids[0] + ":" + ids[1])
}
