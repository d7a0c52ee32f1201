package redisstore

import "fmt"

// Key layout:
//
//	store:queues                     set of queue ids
//	store:queue:{id}                 hash of queue fields and counters
//	store:queue:{id}:entry:{entryId} hash of entry fields
//	store:queue:{id}:waiting         zset of waiting entry ids scored by ticket number
//	store:queue:{id}:serving         set of entry ids being served
//	store:user:{userId}:waiting      hash of queue id to waiting entry id
//
// Every mutation writes store:queue:{id}, so watching that key alone
// detects any concurrent change to a queue.
const queuesKey = "store:queues"

func queueKey(queueID string) string {
	return fmt.Sprintf("store:queue:%s", queueID)
}

func entryKey(queueID, entryID string) string {
	return fmt.Sprintf("store:queue:%s:entry:%s", queueID, entryID)
}

func waitingKey(queueID string) string {
	return fmt.Sprintf("store:queue:%s:waiting", queueID)
}

func servingKey(queueID string) string {
	return fmt.Sprintf("store:queue:%s:serving", queueID)
}

func userWaitingKey(userID string) string {
	return fmt.Sprintf("store:user:%s:waiting", userID)
}
