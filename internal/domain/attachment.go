package domain

// Attachment 表示邮件附件的元数据，随所属邮件级联删除。
//
// 附件二进制内容由外部对象存储负责，这里只记录描述信息。
type Attachment struct {
	ID          string `json:"id" gorm:"primaryKey;type:varchar(36)"`
	MailID      string `json:"mailId" gorm:"type:varchar(36);index;not null"`
	Filename    string `json:"filename" gorm:"type:varchar(255)"`
	ContentType string `json:"contentType" gorm:"type:varchar(100)"`
	Size        int64  `json:"size"`
}
