package store

// Logical paths of the persisted layout. The queue is a single record so
// the pairing transaction covers the whole subtree in one version check.
const QueuePath = "queue"

func SessionPath(id string) string       { return "sessions/" + id }
func SessionSecretPath(id string) string { return "sessionSecrets/" + id }

func ChallengePath(id string) string { return "challenges/" + id }

func InboxPath(playerID, challengeID string) string {
	return "playerInbox/" + playerID + "/" + challengeID
}
func InboxPrefix(playerID string) string { return "playerInbox/" + playerID + "/" }

func NotificationPath(playerID string) string { return "playerNotifications/" + playerID }

func LeaguePath(id string) string       { return "leagues/" + id }
func LeagueCodePath(code string) string { return "leagueCodeIndex/" + code }

func LeagueMemberPath(leagueID, playerID string) string {
	return "leagueMembers/" + leagueID + "/" + playerID
}
func LeagueMemberPrefix(leagueID string) string { return "leagueMembers/" + leagueID + "/" }

func LeagueMatchPath(leagueID, entryID string) string {
	return "leagueMatchHistory/" + leagueID + "/" + entryID
}
func LeagueMatchPrefix(leagueID string) string { return "leagueMatchHistory/" + leagueID + "/" }

func PlayerLeaguePath(playerID, leagueID string) string {
	return "playerLeagues/" + playerID + "/" + leagueID
}
func PlayerLeaguePrefix(playerID string) string { return "playerLeagues/" + playerID + "/" }
