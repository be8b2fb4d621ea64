package storage

import (
	"fmt"

	"relay/internal/models"

	"go.etcd.io/bbolt"
)

// UpdateFriendPair loads both half-edges between ownerID and friendID, lets fn
// modify them and writes the result back in the same transaction. A nil half
// after fn is deleted. If fn returns an error nothing is written.
//
// Both users get a (possibly empty) friend list as a side effect.
func (s *BboltStorage) UpdateFriendPair(ownerID, friendID string, fn func(pair *models.FriendPair) error) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		root := tx.Bucket(bucketFriends)
		ownerList, err := root.CreateBucketIfNotExists([]byte(ownerID))
		if err != nil {
			return fmt.Errorf("failed to create friend list for %s: %w", ownerID, err)
		}
		friendList, err := root.CreateBucketIfNotExists([]byte(friendID))
		if err != nil {
			return fmt.Errorf("failed to create friend list for %s: %w", friendID, err)
		}

		forward, err := getFriendEdge(ownerList, ownerID, friendID)
		if err != nil {
			return err
		}
		reverse, err := getFriendEdge(friendList, friendID, ownerID)
		if err != nil {
			return err
		}

		pair := models.FriendPair{Forward: forward, Reverse: reverse}
		if err := fn(&pair); err != nil {
			return err
		}

		if err := putFriendEdge(ownerList, friendID, pair.Forward); err != nil {
			return err
		}
		return putFriendEdge(friendList, ownerID, pair.Reverse)
	})
}

// ListFriends returns every half-edge owned by ownerID.
func (s *BboltStorage) ListFriends(ownerID string) ([]models.FriendEdge, error) {
	edges := []models.FriendEdge{}
	err := s.db.View(func(tx *bbolt.Tx) error {
		list := tx.Bucket(bucketFriends).Bucket([]byte(ownerID))
		if list == nil {
			return nil
		}
		return list.ForEach(func(k, v []byte) error {
			var dbEdge DBFriendEdge
			if err := dbEdge.UnmarshalBinary(v); err != nil {
				return err
			}
			edges = append(edges, models.FriendEdge{
				OwnerID:  ownerID,
				FriendID: dbEdge.FriendID,
				Status:   models.FriendStatus(dbEdge.Status),
				AddedAt:  dbEdge.AddedAt,
			})
			return nil
		})
	})
	return edges, err
}

func getFriendEdge(list *bbolt.Bucket, ownerID, friendID string) (*models.FriendEdge, error) {
	data := list.Get([]byte(friendID))
	if data == nil {
		return nil, nil
	}
	var dbEdge DBFriendEdge
	if err := dbEdge.UnmarshalBinary(data); err != nil {
		return nil, fmt.Errorf("corrupt friend edge %s->%s: %w", ownerID, friendID, err)
	}
	return &models.FriendEdge{
		OwnerID:  ownerID,
		FriendID: dbEdge.FriendID,
		Status:   models.FriendStatus(dbEdge.Status),
		AddedAt:  dbEdge.AddedAt,
	}, nil
}

func putFriendEdge(list *bbolt.Bucket, friendID string, edge *models.FriendEdge) error {
	if edge == nil {
		return list.Delete([]byte(friendID))
	}
	dbEdge := &DBFriendEdge{
		FriendID: friendID,
		Status:   string(edge.Status),
		AddedAt:  edge.AddedAt,
	}
	data, err := dbEdge.MarshalBinary()
	if err != nil {
		return err
	}
	return list.Put(dbEdge.Key(), data)
}
