package storage

import (
	"encoding"
	"encoding/binary"

	"github.com/vmihailenco/msgpack/v5"
)

type Storeable interface {
	Key() []byte
	encoding.BinaryMarshaler
	encoding.BinaryUnmarshaler
}

var (
	_ Storeable = (*DBUser)(nil)
	_ Storeable = (*DBMessage)(nil)
)

type DBUser struct {
	ID           string `msgpack:"id"`
	Username     string `msgpack:"username"`
	Email        string `msgpack:"email"`
	AvatarURL    string `msgpack:"avatarUrl"`
	PasswordHash string `msgpack:"passwordHash"`
	Verified     bool   `msgpack:"verified"`
	OTP          string `msgpack:"otp"`
	OTPExpires   int64  `msgpack:"otpExpires"`
	CreatedAt    int64  `msgpack:"createdAt"`
}

func (u *DBUser) Key() []byte {
	return []byte(u.ID)
}

func (u *DBUser) MarshalBinary() (data []byte, err error) {
	type alias DBUser
	return msgpack.Marshal((*alias)(u))
}

func (u *DBUser) UnmarshalBinary(data []byte) error {
	type alias DBUser
	return msgpack.Unmarshal(data, (*alias)(u))
}

type DBMessage struct {
	Seq        uint64 `msgpack:"seq"`
	ID         string `msgpack:"id"`
	SenderID   string `msgpack:"senderId"`
	ReceiverID string `msgpack:"receiverId"`
	Text       string `msgpack:"text"`
	CreatedAt  int64  `msgpack:"createdAt"`
}

// Key orders messages inside a thread bucket by insertion sequence.
func (m *DBMessage) Key() []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, m.Seq)
	return key
}

func (m *DBMessage) MarshalBinary() (data []byte, err error) {
	type alias DBMessage
	return msgpack.Marshal((*alias)(m))
}

func (m *DBMessage) UnmarshalBinary(data []byte) error {
	type alias DBMessage
	return msgpack.Unmarshal(data, (*alias)(m))
}
