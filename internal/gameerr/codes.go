// internal/gameerr/codes.go
package gameerr

// Stable error codes rendered to clients.
const (
	CodeInvalidInput     = "INVALID_INPUT"
	CodeStoreUnavailable = "STORE_UNAVAILABLE"
	CodeConcurrentUpdate = "CONCURRENT_UPDATE"

	CodePlayerNotFound   = "PLAYER_NOT_FOUND"
	CodeArtifactNotFound = "ARTIFACT_NOT_FOUND"
	CodeQuestNotFound    = "QUEST_NOT_FOUND"
	CodeTraderNotFound   = "TRADER_NOT_FOUND"
	CodeSessionNotFound  = "SESSION_NOT_FOUND"
	CodeItemNotFound     = "ITEM_NOT_FOUND"

	CodeOperatorRequired = "OPERATOR_REQUIRED"
	CodeFactionForbidden = "FACTION_RESTRICTED"
	CodeNotOwner         = "NOT_OWNER"

	CodePlayerDead = "PLAYER_DEAD"
	CodeNoPosition = "NO_POSITION"

	CodeArtifactBeingExtracted = "ARTIFACT_BEING_EXTRACTED"
	CodeArtifactAlreadyTaken   = "ARTIFACT_ALREADY_TAKEN"
	CodeArtifactNotAvailable   = "ARTIFACT_NOT_AVAILABLE"
	CodeArtifactExpired        = "ARTIFACT_EXPIRED"
	CodeTooFar                 = "TOO_FAR"
	CodeNotExtracting          = "NOT_EXTRACTING"
	CodeExtractionNotComplete  = "EXTRACTION_NOT_COMPLETE"

	CodeQuestNotAvailable   = "QUEST_NOT_AVAILABLE"
	CodeQuestNotActive      = "QUEST_NOT_ACTIVE"
	CodeQuestExpired        = "QUEST_EXPIRED"
	CodeMaxQuests           = "MAX_QUESTS"
	CodeAutoComplete        = "QUEST_AUTO_COMPLETE"
	CodeObjectiveIncomplete = "OBJECTIVE_INCOMPLETE"
	CodeNotAwaiting         = "NOT_AWAITING_CONFIRMATION"
	CodeAlreadyDelivered    = "ALREADY_DELIVERED"
	CodeWrongQuestType      = "WRONG_QUEST_TYPE"
	CodeInsufficientItems   = "INSUFFICIENT_ITEMS"

	CodeTraderTooFar      = "TRADER_TOO_FAR"
	CodeTraderInactive    = "TRADER_INACTIVE"
	CodeSessionActive     = "SESSION_ALREADY_ACTIVE"
	CodeSessionExpired    = "SESSION_EXPIRED"
	CodeInsufficientFunds = "INSUFFICIENT_FUNDS"
	CodeInsufficientStock = "INSUFFICIENT_STOCK"
	CodeItemNotSellable   = "ITEM_NOT_SELLABLE"

	CodeNotEquippable = "NOT_EQUIPPABLE"
	CodeNotEquipped   = "NOT_EQUIPPED"
	CodeNotConsumable = "NOT_CONSUMABLE"
	CodeAlreadyExists = "ALREADY_EXISTS"

	CodeCannotLootSelf = "CANNOT_LOOT_SELF"
	CodeTargetAlive    = "TARGET_ALIVE"
	CodeAlreadyLooted  = "ALREADY_LOOTED"
	CodeNotRedeemable  = "ITEM_NOT_REDEEMABLE"
)
