package cache

import "fmt"

// 键语义：
// - snapshotKey(id): 笔记本 JSON 快照（String），空值标记表示库里也没有
// - roomKey(id):     订阅该笔记本的会话（ZSet<sid, expireAtUnix>，score=expireAt）

const (
	keySnapshotFmt = "notebook:snapshot:{%s}"
	keyRoomFmt     = "presence:room:{%s}"
)

func snapshotKey(notebookID string) string { return fmt.Sprintf(keySnapshotFmt, notebookID) }
func roomKey(notebookID string) string     { return fmt.Sprintf(keyRoomFmt, notebookID) }
