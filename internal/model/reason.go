package model

// Check reason codes persisted on failed listings.
const (
	ReasonNoCampaign          = "no_campaign"
	ReasonNoReceiverAvailable = "no_receiver_available"
	ReasonExhaustedRetries    = "exhausted_retries"

	ReasonFolderLink         = "folder_link_detected"
	ReasonInvalidLink        = "invalid_link"
	ReasonJoinFailed         = "join_failed"
	ReasonFailedToGetChat    = "failed_to_get_chat"
	ReasonNotSupergroup      = "not_supergroup"
	ReasonNotMegagroup       = "not_megagroup"
	ReasonLocationBased      = "location_based_group"
	ReasonNoMessageHistory   = "no_message_history"
	ReasonImported           = "imported_group_detected"
	ReasonYearMismatch       = "year_mismatch"
	ReasonMonthMismatch      = "month_mismatch"
	ReasonEmojiSpam          = "emoji_spam_detected"
	ReasonCryptoRelated      = "crypto_related_group"
	ReasonExcessiveAdditions = "excessive_member_additions"
	ReasonExcessiveRemovals  = "excessive_member_removals"
)
